// Package dashboard loads the role-specific dashboard and exports tabular
// records.
package dashboard

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/FulloMyself/tasselgroupreact/internal/domain"
	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
	"github.com/FulloMyself/tasselgroupreact/pkg/logger"
)

// Source is the part of the API client the dashboard reads.
type Source interface {
	AdminDashboard(ctx context.Context) (domain.DashboardStats, error)
	StaffDashboard(ctx context.Context) (domain.DashboardStats, error)
	MyOrders(ctx context.Context) ([]domain.Order, error)
	MyBookings(ctx context.Context) ([]domain.Booking, error)
	MyGifts(ctx context.Context) ([]domain.GiftOrder, error)
}

// View is a loaded dashboard. Stats is set for admin and staff, Customer for
// customers.
type View struct {
	Role     domain.Role
	Stats    domain.DashboardStats
	Customer *domain.CustomerDashboard
}

// Loader loads dashboards.
type Loader struct {
	src Source
	log *logger.Logger
}

// NewLoader creates a loader.
func NewLoader(src Source, log *logger.Logger) *Loader {
	if log == nil {
		log = logger.NewDefault("dashboard")
	}
	return &Loader{src: src, log: log}
}

// Load fetches the dashboard for user's role. The customer view is fetched
// with three concurrent calls and fails as a whole if any one fails.
func (l *Loader) Load(ctx context.Context, user *domain.User) (*View, error) {
	if user == nil {
		return nil, apierrors.New(apierrors.KindAuthentication, "dashboard requires a signed-in user")
	}

	switch user.Role {
	case domain.RoleAdmin:
		stats, err := l.src.AdminDashboard(ctx)
		if err != nil {
			return nil, err
		}
		return &View{Role: user.Role, Stats: stats}, nil

	case domain.RoleStaff:
		stats, err := l.src.StaffDashboard(ctx)
		if err != nil {
			return nil, err
		}
		return &View{Role: user.Role, Stats: stats}, nil

	case domain.RoleCustomer:
		cd, err := l.customer(ctx)
		if err != nil {
			return nil, err
		}
		return &View{Role: user.Role, Customer: cd}, nil
	}

	return nil, apierrors.New(apierrors.KindAuthorization, "unknown role "+string(user.Role))
}

func (l *Loader) customer(ctx context.Context) (*domain.CustomerDashboard, error) {
	var cd domain.CustomerDashboard

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		orders, err := l.src.MyOrders(ctx)
		cd.Orders = orders
		return err
	})
	g.Go(func() error {
		bookings, err := l.src.MyBookings(ctx)
		cd.Bookings = bookings
		return err
	})
	g.Go(func() error {
		gifts, err := l.src.MyGifts(ctx)
		cd.Gifts = gifts
		return err
	})

	if err := g.Wait(); err != nil {
		l.log.WithContext(ctx).WithError(err).Warn("customer dashboard failed")
		return nil, err
	}
	return &cd, nil
}
