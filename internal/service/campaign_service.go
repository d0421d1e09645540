// internal/service/campaign_service.go
package service

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/config"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/delivery"
	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/export"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/metrics"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/personalize"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/queue"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/repository"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/vendor"
)

// SegmentResolver returns a segment and its current audience.
type SegmentResolver interface {
	Resolve(ctx context.Context, ownerID, segmentID string) (*model.Segment, []model.Customer, error)
}

type Sender interface {
	Send(ctx context.Context, msg vendor.Message) (vendor.SendResult, error)
}

type Enqueuer interface {
	Enqueue(ctx context.Context, msg queue.QueuedMessage) error
}

type CampaignService struct {
	CampaignRepo repository.CampaignRepositoryInterface
	CustomerRepo repository.CustomerRepositoryInterface
	MessageRepo  repository.SentMessageRepositoryInterface
	LogRepo      repository.CommunicationLogRepositoryInterface
	Segments     SegmentResolver
	Recorder     *delivery.Recorder
	Vendor       Sender
	Queue        Enqueuer
	// Mode is config.DeliveryDirect or config.DeliveryQueue.
	Mode        string
	Concurrency int
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	Now         func() time.Time
}

type CreateCampaignRequest struct {
	SegmentID              string                       `json:"segmentId"`
	Name                   string                       `json:"name"`
	Message                string                       `json:"message"`
	Subject                string                       `json:"subject"`
	PersonalizationContext model.PersonalizationContext `json:"personalizationContext"`
}

// CustomerDelivery is the per-customer line of a DeliveryReport.
type CustomerDelivery struct {
	CustomerID          string               `json:"customerId"`
	MessageID           string               `json:"messageId"`
	Recipient           string               `json:"recipient"`
	Status              model.DeliveryStatus `json:"status"`
	PersonalizedMessage string               `json:"personalizedMessage,omitempty"`
	ErrorMessage        string               `json:"errorMessage,omitempty"`
}

type DeliveryReport struct {
	CampaignID      string               `json:"campaignId"`
	Status          model.CampaignStatus `json:"status"`
	TotalCustomers  int                  `json:"totalCustomers"`
	Queued          int                  `json:"queued"`
	Sent            int                  `json:"sent"`
	Failed          int                  `json:"failed"`
	PerCustomerLogs []CustomerDelivery   `json:"perCustomerLogs"`
}

type CampaignDetails struct {
	model.Campaign
	Stats model.CampaignStats `json:"stats"`
}

func (s *CampaignService) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func (s *CampaignService) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// MessageID is unique per campaign, customer and submission time.
func MessageID(campaignID, customerID string, at time.Time) string {
	return fmt.Sprintf("msg_%s_%s_%d", campaignID, customerID, at.UnixNano())
}

func validateTemplate(message string) error {
	if strings.TrimSpace(message) == "" {
		return appErrors.NewValidation("message is required", "message: must not be empty")
	}
	v := personalize.ValidateTemplate(message)
	if v.IsValid {
		return nil
	}
	violations := make([]string, len(v.InvalidPlaceholders))
	for i, p := range v.InvalidPlaceholders {
		violations[i] = "unknown placeholder " + p
	}
	ve := appErrors.NewValidation("message contains invalid placeholders", violations...)
	ve.Details = map[string]any{
		"invalidPlaceholders":   v.InvalidPlaceholders,
		"availablePlaceholders": v.AvailablePlaceholders,
	}
	return ve
}

// CreateAndDeliver validates the template, resolves the audience, creates the
// campaign and hands one message per customer to the vendor or the queue.
// Per-customer failures become FAILED records. Only a failure that cannot be
// recorded cancels the campaign.
func (s *CampaignService) CreateAndDeliver(ctx context.Context, ownerID string, req CreateCampaignRequest) (*DeliveryReport, error) {
	if strings.TrimSpace(req.SegmentID) == "" {
		return nil, appErrors.NewValidation("segmentId is required", "segmentId: must not be empty")
	}
	if err := validateTemplate(req.Message); err != nil {
		return nil, err
	}

	seg, customers, err := s.Segments.Resolve(ctx, ownerID, req.SegmentID)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = seg.Name + " campaign"
	}
	campaign := &model.Campaign{
		OwnerID:   ownerID,
		SegmentID: seg.ID,
		Name:      name,
		Subject:   req.Subject,
		Message:   req.Message,
		Status:    model.CampaignActive,
		Context:   req.PersonalizationContext,
	}
	if err := s.CampaignRepo.Create(ctx, campaign); err != nil {
		return nil, &appErrors.FatalBatchError{Err: fmt.Errorf("create campaign: %w", err)}
	}

	start := time.Now()
	report := &DeliveryReport{
		CampaignID:      campaign.ID,
		TotalCustomers:  len(customers),
		PerCustomerLogs: []CustomerDelivery{},
	}

	// delivery keeps going if the caller disconnects
	work := context.WithoutCancel(ctx)

	if len(customers) > 0 {
		results, err := s.deliverAll(work, campaign, customers)
		if err != nil {
			if uerr := s.CampaignRepo.UpdateStatus(work, ownerID, campaign.ID, model.CampaignCancelled); uerr != nil {
				s.logger().Error("failed to cancel campaign", zap.String("campaign_id", campaign.ID), zap.Error(uerr))
			}
			s.Metrics.CampaignFinished(string(model.CampaignCancelled), time.Since(start))
			s.logger().Error("campaign delivery aborted", zap.String("campaign_id", campaign.ID), zap.Error(err))
			return nil, &appErrors.FatalBatchError{CampaignID: campaign.ID, Err: err}
		}
		report.PerCustomerLogs = results
		for _, r := range results {
			switch r.Status {
			case model.StatusQueued:
				report.Queued++
			case model.StatusPending, model.StatusSent:
				report.Sent++
			case model.StatusFailed:
				report.Failed++
			}
		}
	}

	if err := s.CampaignRepo.UpdateStatus(work, ownerID, campaign.ID, model.CampaignCompleted); err != nil {
		return nil, &appErrors.FatalBatchError{CampaignID: campaign.ID, Err: fmt.Errorf("complete campaign: %w", err)}
	}
	report.Status = model.CampaignCompleted
	s.Metrics.CampaignFinished(string(model.CampaignCompleted), time.Since(start))

	s.logger().Info("campaign delivered",
		zap.String("campaign_id", campaign.ID),
		zap.String("mode", s.Mode),
		zap.Int("total", report.TotalCustomers),
		zap.Int("queued", report.Queued),
		zap.Int("sent", report.Sent),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}

func (s *CampaignService) deliverAll(ctx context.Context, c *model.Campaign, customers []model.Customer) ([]CustomerDelivery, error) {
	limit := s.Concurrency
	if limit < 1 {
		limit = 1
	}
	results := make([]CustomerDelivery, len(customers))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range customers {
		i := i
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			d, err := s.deliverOne(gctx, c, customers[i])
			results[i] = d
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// deliverOne returns an error only when the customer's failure could not be
// recorded either.
func (s *CampaignService) deliverOne(ctx context.Context, c *model.Campaign, cust model.Customer) (CustomerDelivery, error) {
	d := CustomerDelivery{
		CustomerID: cust.ID,
		MessageID:  MessageID(c.ID, cust.ID, s.now()),
		Recipient:  cust.Email,
	}
	var opened bool
	var text, html string

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic while delivering: %v", r)
			}
		}()

		res := personalize.Personalize(c.Message, &cust, c.Context.FallbackName, c.Context.CustomData())
		text = res.PersonalizedMessage
		html = personalize.BuildHTML(text, c.Context.StoreName, c.Context.Signature)
		d.PersonalizedMessage = text
		metadata := map[string]string{"campaignName": c.Name, "customerName": cust.Name}

		if s.Mode == config.DeliveryQueue {
			if err := s.Queue.Enqueue(ctx, queue.QueuedMessage{
				OwnerID:    c.OwnerID,
				CampaignID: c.ID,
				CustomerID: cust.ID,
				MessageID:  d.MessageID,
				Recipient:  cust.Email,
				Subject:    c.Subject,
				Text:       text,
				HTML:       html,
				Metadata:   metadata,
			}); err != nil {
				return err
			}
			opened = true
			d.Status = model.StatusQueued
			return nil
		}

		if err := s.Recorder.Open(ctx, delivery.Attempt{
			OwnerID:    c.OwnerID,
			CampaignID: c.ID,
			CustomerID: cust.ID,
			MessageID:  d.MessageID,
			Recipient:  cust.Email,
			Subject:    c.Subject,
			Text:       text,
			HTML:       html,
			Metadata:   metadata,
			Status:     model.StatusPending,
		}); err != nil {
			return err
		}
		opened = true
		res2, err := s.Vendor.Send(ctx, vendor.Message{
			MessageID: d.MessageID,
			Recipient: cust.Email,
			Subject:   c.Subject,
			Text:      text,
			HTML:      html,
		})
		if err != nil {
			return err
		}
		if !res2.Accepted {
			return fmt.Errorf("vendor rejected message")
		}
		s.Metrics.MessageSubmitted(config.DeliveryDirect)
		d.Status = model.StatusPending
		return nil
	}()
	if err == nil {
		return d, nil
	}

	s.logger().Warn("customer delivery failed",
		zap.String("campaign_id", c.ID),
		zap.String("customer_id", cust.ID),
		zap.String("message_id", d.MessageID),
		zap.Error(err),
	)
	d.Status = model.StatusFailed
	d.ErrorMessage = err.Error()

	if !opened {
		oerr := s.Recorder.Open(ctx, delivery.Attempt{
			OwnerID:      c.OwnerID,
			CampaignID:   c.ID,
			CustomerID:   cust.ID,
			MessageID:    d.MessageID,
			Recipient:    cust.Email,
			Subject:      c.Subject,
			Text:         text,
			HTML:         html,
			Status:       model.StatusFailed,
			ErrorMessage: d.ErrorMessage,
		})
		if oerr == nil {
			return d, nil
		}
		s.logger().Warn("failed to open FAILED record, marking instead", zap.String("message_id", d.MessageID), zap.Error(oerr))
	}
	if _, rerr := s.Recorder.Record(ctx, model.Outcome{
		MessageID:    d.MessageID,
		Status:       model.StatusFailed,
		ErrorMessage: d.ErrorMessage,
		At:           s.now(),
	}); rerr != nil {
		return d, fmt.Errorf("record failure for customer %s: %w", cust.ID, rerr)
	}
	return d, nil
}

type PreviewRequest struct {
	CampaignID string                        `json:"campaignId"`
	CustomerID string                        `json:"customerId"`
	Template   *string                       `json:"template"`
	Context    *model.PersonalizationContext `json:"personalizationContext"`
}

type PreviewResult struct {
	personalize.Result
	HTML string `json:"html"`
}

// RenderPreview personalizes a template for one customer without sending.
// The template comes from the request or from the referenced campaign.
func (s *CampaignService) RenderPreview(ctx context.Context, ownerID string, req PreviewRequest) (*PreviewResult, error) {
	customer, err := s.CustomerRepo.GetByID(ctx, ownerID, req.CustomerID)
	if err != nil {
		return nil, err
	}

	var template string
	var pctx model.PersonalizationContext
	if req.CampaignID != "" {
		campaign, err := s.CampaignRepo.GetByID(ctx, ownerID, req.CampaignID)
		if err != nil {
			return nil, err
		}
		template = campaign.Message
		pctx = campaign.Context
	}
	if req.Template != nil && strings.TrimSpace(*req.Template) != "" {
		template = *req.Template
	}
	if req.Context != nil {
		pctx = *req.Context
	}
	if err := validateTemplate(template); err != nil {
		return nil, err
	}

	res := personalize.Personalize(template, customer, pctx.FallbackName, pctx.CustomData())
	return &PreviewResult{
		Result: res,
		HTML:   personalize.BuildHTML(res.PersonalizedMessage, pctx.StoreName, pctx.Signature),
	}, nil
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, ownerID string, page, pageSize int, status string) ([]model.Campaign, map[string]int, error) {
	page, pageSize, offset := normalizePage(page, pageSize)

	ptrs, total, err := s.CampaignRepo.ListCampaigns(ctx, ownerID, offset, pageSize, status)
	if err != nil {
		return nil, nil, err
	}

	campaigns := make([]model.Campaign, len(ptrs))
	for i, c := range ptrs {
		campaigns[i] = *c
	}
	return campaigns, pagination(page, pageSize, total), nil
}

func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, ownerID, campaignID string) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, ownerID, campaignID)
	if err != nil {
		return nil, err
	}
	stats, err := s.stats(ctx, ownerID, campaignID)
	if err != nil {
		return nil, err
	}
	return &CampaignDetails{Campaign: *campaign, Stats: stats}, nil
}

func (s *CampaignService) GetCampaignStats(ctx context.Context, ownerID, campaignID string) (*model.CampaignStats, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, ownerID, campaignID); err != nil {
		return nil, err
	}
	stats, err := s.stats(ctx, ownerID, campaignID)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (s *CampaignService) stats(ctx context.Context, ownerID, campaignID string) (model.CampaignStats, error) {
	counts, err := s.MessageRepo.CountByStatus(ctx, ownerID, campaignID)
	if err != nil {
		return model.CampaignStats{}, fmt.Errorf("count messages: %w", err)
	}
	return ComputeStats(counts), nil
}

// ComputeStats derives totals and rates from status counts. Rates are
// percentages rounded to two places, 0 when there are no messages, and never
// sum past 100.
func ComputeStats(counts map[model.DeliveryStatus]int) model.CampaignStats {
	st := model.CampaignStats{
		Sent:    counts[model.StatusSent],
		Failed:  counts[model.StatusFailed],
		Pending: counts[model.StatusPending],
		Queued:  counts[model.StatusQueued],
	}
	st.Total = st.Sent + st.Failed + st.Pending + st.Queued
	if st.Total == 0 {
		return st
	}
	st.SuccessRate = round2(float64(st.Sent) / float64(st.Total) * 100)
	st.FailureRate = round2(float64(st.Failed) / float64(st.Total) * 100)
	if st.SuccessRate+st.FailureRate > 100 {
		st.FailureRate = round2(100 - st.SuccessRate)
	}
	return st
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (s *CampaignService) ListCampaignLogs(ctx context.Context, ownerID, campaignID string, page, pageSize int) ([]model.CommunicationLog, map[string]int, error) {
	if _, err := s.CampaignRepo.GetByID(ctx, ownerID, campaignID); err != nil {
		return nil, nil, err
	}
	page, pageSize, offset := normalizePage(page, pageSize)
	logs, total, err := s.LogRepo.ListByCampaign(ctx, ownerID, campaignID, offset, pageSize)
	if err != nil {
		return nil, nil, err
	}
	return logs, pagination(page, pageSize, total), nil
}

// Export renders the campaign's sent messages as an xlsx workbook.
func (s *CampaignService) Export(ctx context.Context, ownerID, campaignID string) (*model.Campaign, []byte, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, ownerID, campaignID)
	if err != nil {
		return nil, nil, err
	}
	messages, err := s.MessageRepo.ListByCampaign(ctx, ownerID, campaignID)
	if err != nil {
		return nil, nil, err
	}
	data, err := export.CampaignMessagesWorkbook(campaign, messages)
	if err != nil {
		return nil, nil, err
	}
	return campaign, data, nil
}

func normalizePage(page, pageSize int) (int, int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	return page, pageSize, (page - 1) * pageSize
}

func pagination(page, pageSize, total int) map[string]int {
	return map[string]int{
		"page":        page,
		"page_size":   pageSize,
		"total_count": total,
		"total_pages": (total + pageSize - 1) / pageSize,
	}
}
