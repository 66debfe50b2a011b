package auth

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	log "github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"zelenka/internal/domain"
)

// ErrUnauthenticated токен отсутствует, неизвестен или отклонён auth-сервисом
var ErrUnauthenticated = errors.New("unauthenticated")

// Verifier коллаборатор аутентификации: токен -> идентичность.
// Выдача токенов, сессии и пароли живут во внешнем сервисе.
type Verifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// DevVerifier статическая проверка для разработки и тестов. Понимает
// токены вида "user:<id>" и "admin:<id>".
type DevVerifier struct{}

var _ Verifier = DevVerifier{}

func (DevVerifier) Verify(_ context.Context, token string) (domain.Identity, error) {
	kind, rest, ok := strings.Cut(token, ":")
	if !ok {
		return domain.Identity{}, ErrUnauthenticated
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil || id <= 0 {
		return domain.Identity{}, ErrUnauthenticated
	}
	switch kind {
	case "user":
		return domain.Identity{UserID: id}, nil
	case "admin":
		return domain.Identity{UserID: id, Admin: true}, nil
	}
	return domain.Identity{}, ErrUnauthenticated
}

// RemoteVerifier спрашивает внешний auth-сервис. Вызов обёрнут в
// circuit breaker: при недоступности сервиса запросы быстро отклоняются,
// а не копятся на таймаутах.
type RemoteVerifier struct {
	client *resty.Client
	cb     *gobreaker.CircuitBreaker
}

var _ Verifier = (*RemoteVerifier)(nil)

func NewRemoteVerifier(baseURL string) *RemoteVerifier {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "auth",
		MaxRequests: 3,
		Interval:    15 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.WithFields(log.Fields{
				"circuit": name,
				"from":    from.String(),
				"to":      to.String(),
			}).Info("circuit breaker state changed")
		},
	})
	return &RemoteVerifier{
		client: resty.New().SetBaseURL(baseURL).SetTimeout(3 * time.Second),
		cb:     cb,
	}
}

type verifyResponse struct {
	UserID int64 `json:"user_id"`
	Admin  bool  `json:"admin"`
}

func (v *RemoteVerifier) Verify(ctx context.Context, token string) (domain.Identity, error) {
	result, err := v.cb.Execute(func() (any, error) {
		var body verifyResponse
		resp, err := v.client.R().
			SetContext(ctx).
			SetAuthToken(token).
			SetResult(&body).
			Get("/verify")
		if err != nil {
			return nil, err
		}
		if resp.StatusCode() == 401 || resp.StatusCode() == 403 {
			return nil, ErrUnauthenticated
		}
		if resp.IsError() {
			return nil, errors.New("auth service error: " + resp.Status())
		}
		return domain.Identity{UserID: body.UserID, Admin: body.Admin}, nil
	})
	if err != nil {
		if errors.Is(err, ErrUnauthenticated) {
			return domain.Identity{}, ErrUnauthenticated
		}
		return domain.Identity{}, err
	}
	return result.(domain.Identity), nil
}
