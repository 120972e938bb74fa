package deliveries

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"github.com/chrismessina/delivery-tracker/internal/integrations/carrier"
	"github.com/chrismessina/delivery-tracker/internal/integrations/carrier/fake"
	"github.com/chrismessina/delivery-tracker/internal/integrations/carrier/manual"
	"github.com/chrismessina/delivery-tracker/internal/models"
	"github.com/chrismessina/delivery-tracker/internal/services/deliveries/mocks"
	"github.com/chrismessina/delivery-tracker/internal/services/status"
	"github.com/chrismessina/delivery-tracker/internal/storage/memstore"
)

type ServiceSuite struct {
	suite.Suite

	now  time.Time
	repo *mocks.MockRepository
	pkgs *memstore.Packages
	svc  *Service
}

func registry() *carrier.Registry {
	return carrier.NewRegistry(map[string]carrier.Carrier{
		"ups":    fake.New("ups"),
		"amazon": manual.New("https://www.amazon.com/orders"),
	})
}

func (s *ServiceSuite) SetupTest() {
	s.now = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	s.repo = mocks.NewMockRepository(s.T())
	s.pkgs = memstore.NewPackages(nil)
	reg := registry()
	s.svc = New(s.repo, s.pkgs, reg, status.NewEngine(reg)).WithClock(func() time.Time { return s.now })
}

func (s *ServiceSuite) TestAdd_CreatesWithUUID() {
	s.repo.On("CreateDelivery", mock.Anything, mock.MatchedBy(func(d models.Delivery) bool {
		return d.ID != "" && d.Name == "Shoes" && d.TrackingNumber == "1Z999" && d.CreatedAt.Equal(s.now)
	})).Return(nil).Once()

	d, err := s.svc.Add(context.Background(), models.DeliveryCreateInput{
		Name: "  Shoes ", TrackingNumber: "1Z999", Carrier: "ups",
	})
	s.Require().NoError(err)
	s.Require().Len(d.ID, 36)
	s.Require().False(d.Archived)
}

func (s *ServiceSuite) TestAdd_ValidateErrors() {
	_, err := s.svc.Add(context.Background(), models.DeliveryCreateInput{TrackingNumber: "1", Carrier: "ups"})
	s.Require().ErrorIs(err, ErrValidation)
	s.Require().Contains(err.Error(), "name is required")

	_, err = s.svc.Add(context.Background(), models.DeliveryCreateInput{Name: "x", TrackingNumber: "1", Carrier: "dhl"})
	s.Require().ErrorIs(err, ErrValidation)
	s.Require().Contains(err.Error(), `unknown carrier "dhl"`)

	s.repo.AssertNotCalled(s.T(), "CreateDelivery", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestAdd_RepoError() {
	want := errors.New("db down")
	s.repo.On("CreateDelivery", mock.Anything, mock.Anything).Return(want).Once()

	_, err := s.svc.Add(context.Background(), models.DeliveryCreateInput{Name: "x", TrackingNumber: "1", Carrier: "ups"})
	s.Require().ErrorIs(err, want)
}

func (s *ServiceSuite) TestGet_BadIDIsNotFound() {
	_, err := s.svc.Get(context.Background(), "not-a-uuid")
	s.Require().ErrorIs(err, ErrNotFound)
	s.repo.AssertNotCalled(s.T(), "GetDelivery", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestToggleDelivered_RemoteCarrierRejected() {
	id := "7d0d1f5e-3a39-4a0e-9a43-0d0f3f1b9a11"
	s.repo.On("GetDelivery", mock.Anything, id).
		Return(models.Delivery{ID: id, Carrier: "ups"}, nil).Once()

	_, err := s.svc.ToggleDelivered(context.Background(), id)
	s.Require().ErrorIs(err, ErrValidation)
	s.repo.AssertNotCalled(s.T(), "SaveDelivery", mock.Anything, mock.Anything)
}

func (s *ServiceSuite) TestArchive_SetsArchivedAt() {
	id := "7d0d1f5e-3a39-4a0e-9a43-0d0f3f1b9a11"
	s.repo.On("GetDelivery", mock.Anything, id).
		Return(models.Delivery{ID: id, Carrier: "ups"}, nil).Once()
	s.repo.On("SaveDelivery", mock.Anything, mock.MatchedBy(func(d models.Delivery) bool {
		return d.Archived && d.ArchivedAt != nil && d.ArchivedAt.Equal(s.now)
	})).Return(nil).Once()

	d, err := s.svc.Archive(context.Background(), id)
	s.Require().NoError(err)
	s.Require().True(d.Archived)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}
