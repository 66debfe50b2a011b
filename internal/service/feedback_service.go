package service

import (
	"context"

	"zelenka/internal/domain"
	"zelenka/internal/repository"
)

// FeedbackService отзывы: общие и о товаре
type FeedbackService struct {
	repo     repository.FeedbackRepository
	products repository.ProductRepository
}

func NewFeedbackService(repo repository.FeedbackRepository, products repository.ProductRepository) *FeedbackService {
	return &FeedbackService{repo: repo, products: products}
}

// Submit общий отзыв без привязки к товару
func (s *FeedbackService) Submit(ctx context.Context, who domain.Identity, comment string) (*domain.Feedback, error) {
	if who.UserID <= 0 || comment == "" {
		return nil, ErrInvalidInput
	}
	f := domain.Feedback{UserID: who.UserID, Comment: comment}
	if err := s.repo.Create(ctx, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// SubmitForProduct отзыв о товаре с оценкой 1..5
func (s *FeedbackService) SubmitForProduct(ctx context.Context, who domain.Identity, productID int64, rating float64, comment string) (*domain.Feedback, error) {
	if who.UserID <= 0 || productID <= 0 || rating < 1 || rating > 5 {
		return nil, ErrInvalidInput
	}
	if _, err := s.products.GetByID(ctx, productID); err != nil {
		return nil, err
	}
	f := domain.Feedback{UserID: who.UserID, ProductID: &productID, Rating: rating, Comment: comment}
	if err := s.repo.Create(ctx, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

func (s *FeedbackService) List(ctx context.Context) ([]domain.Feedback, error) {
	return s.repo.List(ctx)
}
