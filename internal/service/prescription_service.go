package service

import (
	"context"
	"errors"

	log "github.com/sirupsen/logrus"

	"zelenka/internal/domain"
	"zelenka/internal/repository"
	"zelenka/internal/storage"
)

// PrescriptionService загрузка рецептов и мост «одобрение -> заказ»
type PrescriptionService struct {
	prescriptions repository.PrescriptionRepository
	orders        *OrderService
	blobs         storage.BlobStore
	tx            repository.TxManager
}

func NewPrescriptionService(prescriptions repository.PrescriptionRepository, orders *OrderService, blobs storage.BlobStore, tx repository.TxManager) *PrescriptionService {
	return &PrescriptionService{prescriptions: prescriptions, orders: orders, blobs: blobs, tx: tx}
}

// Submit сохраняет изображение рецепта у blob-коллаборатора и создаёт
// запись со статусом pending.
func (s *PrescriptionService) Submit(ctx context.Context, who domain.Identity, image []byte, contentType, description string) (*domain.Prescription, error) {
	if who.UserID <= 0 || len(image) == 0 {
		return nil, ErrInvalidInput
	}
	ref, err := s.blobs.Put(ctx, image, contentType)
	if err != nil {
		return nil, err
	}
	p := domain.Prescription{
		UserID:      who.UserID,
		ImageRef:    ref,
		Description: description,
		Status:      domain.PrescriptionStatusPending,
	}
	if err := s.prescriptions.Create(ctx, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *PrescriptionService) Get(ctx context.Context, who domain.Identity, id int64) (*domain.Prescription, error) {
	if id <= 0 {
		return nil, ErrInvalidInput
	}
	p, err := s.prescriptions.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !who.Owns(p.UserID) {
		return nil, ErrForbidden
	}
	return p, nil
}

func (s *PrescriptionService) ListUser(ctx context.Context, who domain.Identity) ([]domain.Prescription, error) {
	return s.prescriptions.ListByUser(ctx, who.UserID)
}

func (s *PrescriptionService) ListAll(ctx context.Context, who domain.Identity) ([]domain.Prescription, error) {
	if !who.Admin {
		return nil, ErrForbidden
	}
	return s.prescriptions.ListAll(ctx)
}

// ProcessResult итог обработки рецепта администратором
type ProcessResult struct {
	Prescription *domain.Prescription `json:"prescription"`
	Order        *domain.Order        `json:"order,omitempty"`
}

// Process одобряет или отклоняет рецепт. Одобрение создаёт заказ через
// обычное оформление (с резервированием запаса) от имени владельца рецепта;
// заказ ссылается на рецепт. Рецепт обрабатывается ровно один раз.
func (s *PrescriptionService) Process(ctx context.Context, who domain.Identity, id int64, status domain.PrescriptionStatus, adminNotes string, items []domain.OrderItem) (*ProcessResult, error) {
	if !who.Admin {
		return nil, ErrForbidden
	}
	if id <= 0 || (status != domain.PrescriptionStatusApproved && status != domain.PrescriptionStatusRejected) {
		return nil, ErrInvalidInput
	}
	if status == domain.PrescriptionStatusApproved && len(items) == 0 {
		return nil, ErrInvalidInput
	}

	var result ProcessResult
	err := s.tx.WithTransaction(ctx, func(ctx context.Context) error {
		p, err := s.prescriptions.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if p.Status != domain.PrescriptionStatusPending {
			return ErrAlreadyProcessed
		}
		p.Status = status
		p.AdminNotes = adminNotes
		err = s.prescriptions.Resolve(ctx, p)
		if errors.Is(err, repository.ErrStaleStatus) {
			// a concurrent decision committed first
			return ErrAlreadyProcessed
		}
		if err != nil {
			return err
		}
		result.Prescription = p
		if status == domain.PrescriptionStatusRejected {
			return nil
		}
		// approval bridge: reuse order placement unchanged
		o, err := s.orders.PlaceForPrescription(ctx, p.UserID, items, p.ID)
		if err != nil {
			return err
		}
		result.Order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"prescription_id": id,
		"status":          string(status),
		"admin_id":        who.UserID,
	}).Info("prescription processed")
	return &result, nil
}
