// Package segment keeps each segment's materialized customer snapshot in
// step with its rule tree.
package segment

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/Rakesh-Kumar-Talam/CRM-backend/internal/errors"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/metrics"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/model"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/repository"
	"github.com/Rakesh-Kumar-Talam/CRM-backend/internal/rules"
)

const (
	DefaultStaleAfter = 5 * time.Minute
	PreviewSampleSize = 10
)

type Service struct {
	Segments   repository.SegmentRepositoryInterface
	Customers  repository.CustomerRepositoryInterface
	StaleAfter time.Duration
	// StrictRules rejects rule trees that rules.Validate refuses. Off, a
	// malformed node is stored and evaluates permissively.
	StrictRules bool
	Metrics     *metrics.Metrics
	Logger      *zap.Logger
	Now         func() time.Time
}

func NewService(segments repository.SegmentRepositoryInterface, customers repository.CustomerRepositoryInterface,
	staleAfter time.Duration, m *metrics.Metrics, logger *zap.Logger) *Service {
	if staleAfter <= 0 {
		staleAfter = DefaultStaleAfter
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		Segments:   segments,
		Customers:  customers,
		StaleAfter: staleAfter,
		Metrics:    m,
		Logger:     logger,
		Now:        time.Now,
	}
}

// Result is a segment plus a non-fatal warning about its snapshot.
type Result struct {
	Segment *model.Segment `json:"segment"`
	Warning string         `json:"warning,omitempty"`
}

type CreateInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Rules       model.RuleGroup `json:"rules"`
}

// UpdateInput leaves nil fields unchanged.
type UpdateInput struct {
	Name        *string          `json:"name"`
	Description *string          `json:"description"`
	Rules       *model.RuleGroup `json:"rules"`
}

// Materialize re-derives the segment's matching customers from a full scan
// and stores ids, count and timestamp. It returns the count.
func (s *Service) Materialize(ctx context.Context, ownerID, segmentID string) (int, error) {
	seg, err := s.Segments.GetByID(ctx, ownerID, segmentID)
	if err != nil {
		return 0, err
	}
	if err := s.materialize(ctx, seg); err != nil {
		return 0, err
	}
	return seg.CustomerCount, nil
}

func (s *Service) materialize(ctx context.Context, seg *model.Segment) (err error) {
	start := time.Now()
	defer func() { s.Metrics.SegmentMaterialized(err, time.Since(start)) }()

	customers, err := s.Customers.ListAll(ctx, seg.OwnerID)
	if err != nil {
		return fmt.Errorf("load customers: %w", err)
	}
	now := s.Now()
	matched := rules.Filter(customers, seg.Rules, now)
	ids := make([]string, len(matched))
	for i := range matched {
		ids[i] = matched[i].ID
	}
	if err := s.Segments.SaveSnapshot(ctx, seg.OwnerID, seg.ID, ids, now); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}

	seg.CustomerIDs = ids
	seg.CustomerCount = len(ids)
	seg.LastPopulatedAt = &now
	s.Logger.Info("segment materialized",
		zap.String("segment_id", seg.ID),
		zap.Int("customer_count", len(ids)),
		zap.Duration("took", time.Since(start)),
	)
	return nil
}

// GetCustomers pages over the snapshot, materializing first when it is empty.
// A limit <= 0 returns everything after offset.
func (s *Service) GetCustomers(ctx context.Context, ownerID, segmentID string, limit, offset int) ([]model.Customer, error) {
	seg, err := s.Segments.GetByID(ctx, ownerID, segmentID)
	if err != nil {
		return nil, err
	}
	if seg.CustomerCount == 0 || len(seg.CustomerIDs) == 0 {
		if err := s.materialize(ctx, seg); err != nil {
			return nil, err
		}
	}

	ids := seg.CustomerIDs
	if offset < 0 {
		offset = 0
	}
	if offset >= len(ids) {
		return []model.Customer{}, nil
	}
	ids = ids[offset:]
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	return s.Customers.GetByIDs(ctx, ownerID, ids)
}

// Resolve returns the segment and its full audience, refreshing a stale
// snapshot first.
func (s *Service) Resolve(ctx context.Context, ownerID, segmentID string) (*model.Segment, []model.Customer, error) {
	seg, err := s.Segments.GetByID(ctx, ownerID, segmentID)
	if err != nil {
		return nil, nil, err
	}
	if seg.IsStale(s.Now(), s.StaleAfter) {
		if err := s.materialize(ctx, seg); err != nil {
			return nil, nil, err
		}
	}
	if len(seg.CustomerIDs) == 0 {
		return seg, []model.Customer{}, nil
	}
	customers, err := s.Customers.GetByIDs(ctx, ownerID, seg.CustomerIDs)
	if err != nil {
		return nil, nil, err
	}
	return seg, customers, nil
}

func (s *Service) validateInput(name string, node model.RuleGroup) error {
	var violations []string
	if strings.TrimSpace(name) == "" {
		violations = append(violations, "name is required")
	}
	if s.StrictRules {
		if err := rules.Validate(node); err != nil {
			violations = append(violations, err.Error())
		}
	}
	if len(violations) > 0 {
		return appErrors.NewValidation("invalid segment", violations...)
	}
	return nil
}

// Create stores the segment and materializes it. A materialization failure
// still returns the segment, with a zero count and a warning.
func (s *Service) Create(ctx context.Context, ownerID string, in CreateInput) (*Result, error) {
	if err := s.validateInput(in.Name, in.Rules); err != nil {
		return nil, err
	}
	seg := &model.Segment{
		OwnerID:     ownerID,
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Rules:       in.Rules,
		CustomerIDs: []string{},
	}
	if err := s.Segments.Create(ctx, seg); err != nil {
		return nil, err
	}

	res := &Result{Segment: seg}
	if err := s.materialize(ctx, seg); err != nil {
		s.Logger.Warn("segment created without snapshot", zap.String("segment_id", seg.ID), zap.Error(err))
		seg.CustomerIDs = []string{}
		seg.CustomerCount = 0
		res.Warning = "segment created but customer population failed: " + err.Error()
	}
	return res, nil
}

// Update applies in and re-materializes. On materialization failure the prior
// snapshot is returned with a warning.
func (s *Service) Update(ctx context.Context, ownerID, segmentID string, in UpdateInput) (*Result, error) {
	seg, err := s.Segments.GetByID(ctx, ownerID, segmentID)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		seg.Name = strings.TrimSpace(*in.Name)
	}
	if in.Description != nil {
		seg.Description = *in.Description
	}
	if in.Rules != nil {
		seg.Rules = *in.Rules
	}
	if err := s.validateInput(seg.Name, seg.Rules); err != nil {
		return nil, err
	}
	if err := s.Segments.Update(ctx, seg); err != nil {
		return nil, err
	}

	prior := *seg
	res := &Result{Segment: seg}
	if err := s.materialize(ctx, seg); err != nil {
		s.Logger.Warn("segment updated, snapshot kept", zap.String("segment_id", seg.ID), zap.Error(err))
		*seg = prior
		res.Warning = "segment updated but customer population failed: " + err.Error()
	}
	return res, nil
}

// Get returns the segment, refreshing a stale snapshot. A failed refresh is
// logged and the stored snapshot is served.
func (s *Service) Get(ctx context.Context, ownerID, segmentID string) (*model.Segment, error) {
	seg, err := s.Segments.GetByID(ctx, ownerID, segmentID)
	if err != nil {
		return nil, err
	}
	s.refreshIfStale(ctx, seg)
	return seg, nil
}

func (s *Service) List(ctx context.Context, ownerID string) ([]model.Segment, error) {
	segs, err := s.Segments.List(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	for i := range segs {
		s.refreshIfStale(ctx, &segs[i])
	}
	return segs, nil
}

func (s *Service) refreshIfStale(ctx context.Context, seg *model.Segment) {
	if !seg.IsStale(s.Now(), s.StaleAfter) {
		return
	}
	prior := *seg
	if err := s.materialize(ctx, seg); err != nil {
		s.Logger.Warn("stale segment refresh failed", zap.String("segment_id", seg.ID), zap.Error(err))
		*seg = prior
	}
}

// Refresh forces a materialization and returns the updated segment.
func (s *Service) Refresh(ctx context.Context, ownerID, segmentID string) (*model.Segment, error) {
	seg, err := s.Segments.GetByID(ctx, ownerID, segmentID)
	if err != nil {
		return nil, err
	}
	if err := s.materialize(ctx, seg); err != nil {
		return nil, err
	}
	return seg, nil
}

func (s *Service) Delete(ctx context.Context, ownerID, segmentID string) error {
	return s.Segments.Delete(ctx, ownerID, segmentID)
}

// Preview evaluates node without saving anything and returns the match count
// with up to PreviewSampleSize customers.
func (s *Service) Preview(ctx context.Context, ownerID string, node model.RuleGroup) (int, []model.Customer, error) {
	if err := rules.Validate(node); err != nil {
		return 0, nil, appErrors.NewValidation("invalid rules", err.Error())
	}
	customers, err := s.Customers.ListAll(ctx, ownerID)
	if err != nil {
		return 0, nil, err
	}
	matched := rules.Filter(customers, node, s.Now())
	sample := matched
	if len(sample) > PreviewSampleSize {
		sample = sample[:PreviewSampleSize]
	}
	return len(matched), sample, nil
}
