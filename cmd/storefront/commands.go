package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/FulloMyself/tasselgroupreact/internal/checkout"
	"github.com/FulloMyself/tasselgroupreact/internal/dashboard"
	"github.com/FulloMyself/tasselgroupreact/internal/domain"
	apierrors "github.com/FulloMyself/tasselgroupreact/internal/errors"
)

type command func(ctx context.Context, args []string) error

func (a *app) commands() map[string]command {
	return map[string]command{
		"login":      a.login,
		"register":   a.register,
		"logout":     a.logout,
		"whoami":     a.whoami,
		"products":   a.products,
		"services":   a.services,
		"gifts":      a.gifts,
		"dashboard":  a.dashboard,
		"checkout":   a.checkout,
		"book":       a.book,
		"gift-order": a.giftOrder,
	}
}

func (a *app) run(ctx context.Context, name string, args []string) error {
	cmd, ok := a.commands()[name]
	if !ok {
		return fmt.Errorf("unknown command %q", name)
	}
	// Wait for revalidation so commands see the confirmed session.
	a.ui.Spin("Restoring session", func() error {
		<-a.session.Restore(ctx)
		return nil
	})
	return cmd(ctx, args)
}

// describe renders err for the terminal: the user-facing message plus
// whatever detail the server sent.
func describe(err error) string {
	var e *apierrors.Error
	if !errors.As(err, &e) {
		return err.Error()
	}
	if e.Detail != "" && e.Detail != e.Message {
		return e.Message + " (" + e.Detail + ")"
	}
	return e.Message
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	return fs
}

func secret(value, env string) string {
	if value != "" {
		return value
	}
	return os.Getenv(env)
}

// ============================================================================
// Session
// ============================================================================

func (a *app) login(ctx context.Context, args []string) error {
	fs := newFlagSet("login")
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "Password (default $STOREFRONT_PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var user *domain.User
	err := a.ui.Spin("Signing in", func() (err error) {
		user, err = a.session.Login(ctx, domain.Credentials{
			Email:    strings.TrimSpace(*email),
			Password: secret(*password, "STOREFRONT_PASSWORD"),
		})
		return err
	})
	if err != nil {
		return err
	}
	a.ui.Success("Signed in as %s (%s)", user.Name, user.Role)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := newFlagSet("register")
	name := fs.String("name", "", "Full name")
	email := fs.String("email", "", "Account email")
	password := fs.String("password", "", "Password (default $STOREFRONT_PASSWORD)")
	phone := fs.String("phone", "", "Phone number")
	address := fs.String("address", "", "Postal address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	user, err := a.session.Register(ctx, domain.Registration{
		Name:     strings.TrimSpace(*name),
		Email:    strings.TrimSpace(*email),
		Password: secret(*password, "STOREFRONT_PASSWORD"),
		Phone:    strings.TrimSpace(*phone),
		Address:  strings.TrimSpace(*address),
	})
	if err != nil {
		return err
	}
	a.ui.Success("Welcome, %s", user.FirstName())
	return nil
}

func (a *app) logout(ctx context.Context, _ []string) error {
	a.session.Logout(ctx)
	a.ui.Success("Signed out")
	return nil
}

func (a *app) whoami(_ context.Context, _ []string) error {
	user := a.session.User()
	if user == nil {
		a.ui.Warning("Not signed in")
		return nil
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Name\t%s\n", user.Name)
	fmt.Fprintf(w, "Email\t%s\n", user.Email)
	fmt.Fprintf(w, "Role\t%s\n", user.Role)
	if user.Phone != "" {
		fmt.Fprintf(w, "Phone\t%s\n", user.Phone)
	}
	return w.Flush()
}

// ============================================================================
// Catalogue
// ============================================================================

func (a *app) products(ctx context.Context, _ []string) error {
	items, err := a.client.Products(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tPRICE")
	for _, p := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID, p.Name, p.Category, p.Price.Format())
	}
	return w.Flush()
}

func (a *app) services(ctx context.Context, _ []string) error {
	items, err := a.client.Services(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDURATION\tPRICE")
	for _, s := range items {
		fmt.Fprintf(w, "%s\t%s\t%d min\t%s\n", s.ID, s.Name, s.Duration, s.Price.Format())
	}
	return w.Flush()
}

func (a *app) gifts(ctx context.Context, _ []string) error {
	items, err := a.client.GiftPackages(ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tPRICE")
	for _, g := range items {
		fmt.Fprintf(w, "%s\t%s\t%s\n", g.ID, g.Name, g.Price.Format())
	}
	return w.Flush()
}

// ============================================================================
// Dashboard
// ============================================================================

func (a *app) dashboard(ctx context.Context, args []string) error {
	fs := newFlagSet("dashboard")
	format := fs.String("format", "json", "Output format: json or csv")
	records := fs.String("records", "orders", "Customer records to export: orders, bookings or gifts")
	out := fs.String("out", "", "Write to this file instead of stdout")
	if err := fs.Parse(args); err != nil {
		return err
	}
	f, err := dashboard.ParseFormat(*format)
	if err != nil {
		return err
	}

	user, err := a.session.RequireUser()
	if err != nil {
		return err
	}
	var view *dashboard.View
	err = a.ui.Spin("Loading dashboard", func() (err error) {
		view, err = dashboard.NewLoader(a.client, a.log.Named("dashboard")).Load(ctx, user)
		return err
	})
	if err != nil {
		return err
	}

	var data interface{}
	if view.Customer != nil {
		switch *records {
		case "orders":
			data = view.Customer.Orders
		case "bookings":
			data = view.Customer.Bookings
		case "gifts":
			data = view.Customer.Gifts
		default:
			return apierrors.Validationf("Unknown record type: %s", *records)
		}
	} else {
		data = []domain.DashboardStats{view.Stats}
	}

	rows, err := dashboard.Rows(data)
	if err != nil {
		return err
	}
	return writeTo(*out, func(w io.Writer) error {
		return dashboard.Export(w, rows, f)
	})
}

func writeTo(path string, fn func(io.Writer) error) error {
	if path == "" {
		return fn(os.Stdout)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ============================================================================
// Checkout
// ============================================================================

// parseItems reads "id" or "id:qty" pairs separated by commas.
func parseItems(s string) (map[string]int, []string, error) {
	qty := make(map[string]int)
	var order []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, n := part, 1
		if i := strings.LastIndex(part, ":"); i >= 0 {
			v, err := strconv.Atoi(part[i+1:])
			if err != nil || v < 1 {
				return nil, nil, apierrors.Validationf("Invalid quantity in %q", part)
			}
			id, n = part[:i], v
		}
		if _, seen := qty[id]; !seen {
			order = append(order, id)
		}
		qty[id] += n
	}
	return qty, order, nil
}

func (a *app) fillCart(ctx context.Context, items string) error {
	qty, order, err := parseItems(items)
	if err != nil {
		return err
	}
	catalogue, err := a.client.Products(ctx)
	if err != nil {
		return err
	}
	byID := make(map[string]domain.Product, len(catalogue))
	for _, p := range catalogue {
		byID[p.ID] = p
	}
	for _, id := range order {
		p, ok := byID[id]
		if !ok {
			return apierrors.Validationf("Unknown product: %s", id)
		}
		for i := 0; i < qty[id]; i++ {
			if err := a.cart.AddItem(p); err != nil {
				return err
			}
		}
	}
	return nil
}

func (a *app) checkout(ctx context.Context, args []string) error {
	fs := newFlagSet("checkout")
	items := fs.String("items", "", "Products to buy, e.g. p1:2,p7")
	method := fs.String("method", string(checkout.MethodOnline), "Payment method: online or manual")
	staff := fs.String("staff", "", "Staff member credited with the sale")
	out := fs.String("out", "payment.html", "Where to write the payment redirect page")
	gateway := fs.String("gateway-url", "", "Override the payment gateway URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	m, err := checkout.ParseMethod(*method)
	if err != nil {
		return err
	}
	if err := a.ui.Spin("Loading products", func() error { return a.fillCart(ctx, *items) }); err != nil {
		return err
	}

	page := &pageWriter{path: *out}
	orch, err := checkout.New(checkout.Config{
		Gateway:                a.client,
		Cart:                   a.cart,
		Identity:               a.session,
		Redirector:             page,
		Origin:                 a.cfg.Origin,
		NotifyURL:              a.cfg.PaymentNotifyURL(),
		GatewayURL:             *gateway,
		ManualRequiresIdentity: a.cfg.ManualCheckoutRequiresAuth,
		Logger:                 a.log.Named("checkout"),
	})
	if err != nil {
		return err
	}

	fmt.Printf("Cart: %d item(s), total %s\n", a.cart.Count(), a.cart.Total().Format())
	var outcome *checkout.Outcome
	err = a.ui.Spin("Placing order", func() (err error) {
		outcome, err = orch.Checkout(ctx, m, checkout.Options{StaffID: strings.TrimSpace(*staff)})
		return err
	})
	if err != nil {
		return err
	}

	switch outcome.Method {
	case checkout.MethodOnline:
		a.ui.Success("Reference %s", outcome.Reference)
		fmt.Printf("Open %s in a browser to complete payment.\n", page.path)
	case checkout.MethodManual:
		msg := outcome.Manual.Message
		if msg == "" {
			msg = "Order placed. We will email you the payment details."
		}
		a.ui.Success("%s", msg)
		fmt.Printf("Reference %s\n", outcome.Reference)
	}
	return nil
}

// pageWriter writes the gateway hand-off page to a file.
type pageWriter struct {
	path string
}

func (p *pageWriter) Redirect(ctx context.Context, r *domain.PaymentRedirect) error {
	return writeTo(p.path, func(w io.Writer) error {
		return (&checkout.FormRedirector{Out: w}).Redirect(ctx, r)
	})
}

// ============================================================================
// Bookings and gifts
// ============================================================================

func (a *app) book(ctx context.Context, args []string) error {
	fs := newFlagSet("book")
	service := fs.String("service", "", "Service ID")
	date := fs.String("date", "", "Date (YYYY-MM-DD)")
	slot := fs.String("time", "", "Time slot, one of "+strings.Join(domain.TimeSlots, " "))
	staff := fs.String("staff", "", "Staff member ID")
	notes := fs.String("notes", "", "Special requests")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := a.session.RequireUser(); err != nil {
		return err
	}

	b, err := a.client.CreateBooking(ctx, domain.BookingRequest{
		ServiceID:       strings.TrimSpace(*service),
		Date:            *date,
		Time:            *slot,
		AssignedStaff:   strings.TrimSpace(*staff),
		SpecialRequests: *notes,
	})
	if err != nil {
		return err
	}
	return printJSON(b)
}

func (a *app) giftOrder(ctx context.Context, args []string) error {
	fs := newFlagSet("gift-order")
	pkg := fs.String("package", "", "Gift package ID")
	name := fs.String("to", "", "Recipient name")
	email := fs.String("email", "", "Recipient email")
	date := fs.String("date", "", "Delivery date (YYYY-MM-DD)")
	message := fs.String("message", "", "Gift message")
	staff := fs.String("staff", "", "Staff member ID")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if _, err := a.session.RequireUser(); err != nil {
		return err
	}

	g, err := a.client.CreateGiftOrder(ctx, domain.GiftOrderRequest{
		PackageID:      strings.TrimSpace(*pkg),
		RecipientName:  strings.TrimSpace(*name),
		RecipientEmail: strings.TrimSpace(*email),
		Message:        *message,
		DeliveryDate:   *date,
		AssignedStaff:  strings.TrimSpace(*staff),
	})
	if err != nil {
		return err
	}
	return printJSON(g)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
