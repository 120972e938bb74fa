package deliveries

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/chrismessina/delivery-tracker/internal/integrations/carrier"
	"github.com/chrismessina/delivery-tracker/internal/models"
	"github.com/chrismessina/delivery-tracker/internal/services/status"
)

var (
	ErrNotFound   = models.ErrDeliveryNotFound
	ErrValidation = errors.New("validation failed")
)

type Repository interface {
	CreateDelivery(ctx context.Context, d models.Delivery) error
	GetDelivery(ctx context.Context, id string) (models.Delivery, error)
	ListDeliveries(ctx context.Context) ([]models.Delivery, error)
	SaveDelivery(ctx context.Context, d models.Delivery) error
	DeleteDeliveries(ctx context.Context, ids ...string) (int, error)
}

type PackageStore interface {
	Update(ctx context.Context, fn func(models.PackageMap) models.PackageMap) error
	Snapshot(ctx context.Context) (models.PackageMap, error)
}

type Service struct {
	repo     Repository
	packages PackageStore
	carriers *carrier.Registry
	engine   *status.Engine
	validate *validator.Validate
	now      func() time.Time
}

func New(repo Repository, packages PackageStore, carriers *carrier.Registry, engine *status.Engine) *Service {
	v := validator.New()
	// в сообщениях об ошибках используем имена полей из json
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})

	return &Service{
		repo:     repo,
		packages: packages,
		carriers: carriers,
		engine:   engine,
		validate: v,
		now:      time.Now,
	}
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

func (s *Service) Add(ctx context.Context, in models.DeliveryCreateInput) (models.Delivery, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.TrackingNumber = strings.TrimSpace(in.TrackingNumber)
	in.Carrier = strings.TrimSpace(in.Carrier)

	if err := s.check(in); err != nil {
		return models.Delivery{}, err
	}
	if err := s.checkCarrier(in.Carrier); err != nil {
		return models.Delivery{}, err
	}

	now := s.now().UTC()
	d := models.Delivery{
		ID:             uuid.NewString(),
		Name:           in.Name,
		TrackingNumber: in.TrackingNumber,
		Carrier:        in.Carrier,
		Notes:          in.Notes,
		Debug:          in.Debug,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.repo.CreateDelivery(ctx, d); err != nil {
		return models.Delivery{}, err
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, id string) (models.Delivery, error) {
	if _, err := uuid.Parse(id); err != nil {
		return models.Delivery{}, ErrNotFound
	}
	return s.repo.GetDelivery(ctx, id)
}

// Update applies a patch. Changing the carrier or the tracking number drops
// the cached packages so the next refresh fetches them anew.
func (s *Service) Update(ctx context.Context, id string, p models.DeliveryPatch) (models.Delivery, error) {
	if err := s.check(p); err != nil {
		return models.Delivery{}, err
	}
	d, err := s.Get(ctx, id)
	if err != nil {
		return models.Delivery{}, err
	}

	resetTracking := false
	if p.Name != nil {
		d.Name = strings.TrimSpace(*p.Name)
	}
	if p.Notes != nil {
		d.Notes = *p.Notes
	}
	if p.TrackingNumber != nil {
		tn := strings.TrimSpace(*p.TrackingNumber)
		resetTracking = resetTracking || tn != d.TrackingNumber
		d.TrackingNumber = tn
	}
	if p.Carrier != nil {
		c := strings.TrimSpace(*p.Carrier)
		if err := s.checkCarrier(c); err != nil {
			return models.Delivery{}, err
		}
		resetTracking = resetTracking || c != d.Carrier
		d.Carrier = c
	}
	if d.Name == "" || d.TrackingNumber == "" {
		return models.Delivery{}, errors.Wrap(ErrValidation, "name and tracking number must not be blank")
	}

	d.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveDelivery(ctx, d); err != nil {
		return models.Delivery{}, err
	}
	if resetTracking {
		if err := s.dropPackages(ctx, d.ID); err != nil {
			return models.Delivery{}, err
		}
	}
	return d, nil
}

func (s *Service) Archive(ctx context.Context, id string) (models.Delivery, error) {
	return s.modify(ctx, id, func(d *models.Delivery) error {
		now := s.now().UTC()
		d.Archived = true
		d.ArchivedAt = &now
		return nil
	})
}

func (s *Service) Unarchive(ctx context.Context, id string) (models.Delivery, error) {
	return s.modify(ctx, id, func(d *models.Delivery) error {
		d.Archived = false
		d.ArchivedAt = nil
		return nil
	})
}

// ToggleDelivered flips the manual delivered flag. Only carriers that cannot
// track remotely accept it.
func (s *Service) ToggleDelivered(ctx context.Context, id string) (models.Delivery, error) {
	return s.modify(ctx, id, func(d *models.Delivery) error {
		if s.carriers.CanTrackRemotely(d.Carrier) {
			return errors.Wrapf(ErrValidation, "carrier %s is tracked remotely", d.Carrier)
		}
		d.ManualMarkedAsDelivered = !d.ManualMarkedAsDelivered
		return nil
	})
}

func (s *Service) Remove(ctx context.Context, id string) error {
	if _, err := s.Get(ctx, id); err != nil {
		return err
	}
	if _, err := s.repo.DeleteDeliveries(ctx, id); err != nil {
		return err
	}
	return s.dropPackages(ctx, id)
}

// RemoveDelivered deletes every active delivery that is fully delivered and
// returns how many were removed.
func (s *Service) RemoveDelivered(ctx context.Context) (int, error) {
	active, err := s.Active(ctx)
	if err != nil {
		return 0, err
	}
	pm, err := s.packages.Snapshot(ctx)
	if err != nil {
		return 0, err
	}

	var ids []string
	for _, d := range active {
		if s.engine.FullyDelivered(d, pm) {
			ids = append(ids, d.ID)
		}
	}
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := s.repo.DeleteDeliveries(ctx, ids...)
	if err != nil {
		return 0, err
	}
	return n, s.dropPackages(ctx, ids...)
}

func (s *Service) All(ctx context.Context) ([]models.Delivery, error) {
	return s.repo.ListDeliveries(ctx)
}

func (s *Service) Active(ctx context.Context) ([]models.Delivery, error) {
	return s.list(ctx, false)
}

func (s *Service) Archived(ctx context.Context) ([]models.Delivery, error) {
	return s.list(ctx, true)
}

// Filter narrows deliveries by carrier key (empty = any) and a
// case-insensitive search over name and tracking number.
func Filter(ds []models.Delivery, carrierKey, search string) []models.Delivery {
	q := strings.ToLower(strings.TrimSpace(search))
	out := make([]models.Delivery, 0, len(ds))
	for _, d := range ds {
		if carrierKey != "" && d.Carrier != carrierKey {
			continue
		}
		if q != "" &&
			!strings.Contains(strings.ToLower(d.Name), q) &&
			!strings.Contains(strings.ToLower(d.TrackingNumber), q) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// TrackingURL returns the carrier's tracking webpage for a delivery.
func (s *Service) TrackingURL(ctx context.Context, id string) (string, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return "", err
	}
	c, ok := s.carriers.Get(d.Carrier)
	if !ok {
		return "", nil
	}
	return c.URLToTrackingWebpage(d), nil
}

func (s *Service) list(ctx context.Context, archived bool) ([]models.Delivery, error) {
	all, err := s.repo.ListDeliveries(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Delivery, 0, len(all))
	for _, d := range all {
		if d.Archived == archived {
			out = append(out, d)
		}
	}
	return out, nil
}

func (s *Service) modify(ctx context.Context, id string, fn func(*models.Delivery) error) (models.Delivery, error) {
	d, err := s.Get(ctx, id)
	if err != nil {
		return models.Delivery{}, err
	}
	if err := fn(&d); err != nil {
		return models.Delivery{}, err
	}
	d.UpdatedAt = s.now().UTC()
	if err := s.repo.SaveDelivery(ctx, d); err != nil {
		return models.Delivery{}, err
	}
	return d, nil
}

func (s *Service) dropPackages(ctx context.Context, ids ...string) error {
	return s.packages.Update(ctx, func(m models.PackageMap) models.PackageMap {
		for _, id := range ids {
			delete(m, id)
		}
		return m
	})
}

func (s *Service) checkCarrier(key string) error {
	if _, ok := s.carriers.Get(key); !ok {
		return errors.Wrapf(ErrValidation, "unknown carrier %q", key)
	}
	return nil
}

func (s *Service) check(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return err
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fieldError(fe))
	}
	return errors.Wrap(ErrValidation, strings.Join(msgs, "; "))
}

func fieldError(fe validator.FieldError) string {
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "max":
		return fmt.Sprintf("%s must be at most %s characters", field, fe.Param())
	case "min":
		return fmt.Sprintf("%s must be at least %s characters", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed validation (%s)", field, fe.Tag())
	}
}
