package repository

import "database/sql"

// Store groups the repositories a process needs.
type Store struct {
	Customers CustomerRepositoryInterface
	Orders    OrderRepositoryInterface
	Segments  SegmentRepositoryInterface
	Campaigns CampaignRepositoryInterface
	Messages  SentMessageRepositoryInterface
	Logs      CommunicationLogRepositoryInterface
	// Outcomes is nil when the backend has no transactions.
	Outcomes OutcomeMarker
}

func NewPostgresStore(db *sql.DB) *Store {
	return &Store{
		Customers: &CustomerRepository{DB: db},
		Orders:    &OrderRepository{DB: db},
		Segments:  &SegmentRepository{DB: db},
		Campaigns: &CampaignRepository{DB: db},
		Messages:  &SentMessageRepository{DB: db},
		Logs:      &CommunicationLogRepository{DB: db},
		Outcomes:  &TxOutcomeMarker{DB: db},
	}
}

func NewMemoryStore() *Store {
	return &Store{
		Customers: NewMemoryCustomerRepository(),
		Orders:    NewMemoryOrderRepository(),
		Segments:  NewMemorySegmentRepository(),
		Campaigns: NewMemoryCampaignRepository(),
		Messages:  NewMemorySentMessageRepository(),
		Logs:      NewMemoryCommunicationLogRepository(),
	}
}
