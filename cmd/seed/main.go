// cmd/seed populates the configured store with demo users and reports for
// development.
//
// Running twice is safe: users are matched by e-mail and reports by author
// and title, and existing ones are left alone. To reset, delete the
// opengov_users and opengov_reports keys from the store.
//
// Usage:
//
//	go run ./cmd/seed
//	STORE_DRIVER=redis go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jmerrifield20/opengov/internal/app"
	"github.com/jmerrifield20/opengov/internal/config"
	"github.com/jmerrifield20/opengov/internal/feed"
	"github.com/jmerrifield20/opengov/internal/model"
	"github.com/jmerrifield20/opengov/internal/service"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "seed: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgFile := flag.String("config", "", "config file (default configs/opengov.yaml)")
	flag.Parse()

	cfg, err := config.Load(*cfgFile)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := app.Build(ctx, cfg, zap.NewNop())
	if err != nil {
		return err
	}
	defer a.Close()
	fmt.Printf("connected to %s store\n", cfg.Store.Driver)

	if err := seed(ctx, a, os.Stdout); err != nil {
		return err
	}
	fmt.Println("\nseed complete")
	return nil
}

// ── Users ────────────────────────────────────────────────────────────────────

var users = []struct {
	Email string
	Name  string
	Role  model.Role
}{
	{"maya@example.org", "Maya Chen", model.RoleCitizen},
	{"omar@example.org", "Omar Haddad", model.RoleCitizen},
	{"lena@example.org", "Lena Novak", model.RoleCitizen},
	{"works@city.gov", "Public Works", model.RoleAuthority},
	{"parks@city.gov", "Parks & Recreation", model.RoleAuthority},
}

// ── Reports ──────────────────────────────────────────────────────────────────

// step is one follow-up action on a seeded report. Exactly one of Status,
// Comment, Note or Vote is set.
type step struct {
	Actor   string // e-mail
	Status  model.Status
	Comment string
	Note    string
	Vote    model.VoteKind
}

func ptr(f float64) *float64 { return &f }

var reports = []struct {
	Author  string
	Content model.Content
	Steps   []step
}{
	{
		Author: "maya@example.org",
		Content: model.Content{
			Title:       "Deep pothole on Elm Street",
			Description: "A pothole roughly 30cm across has opened in the northbound lane outside number 42.",
			Category:    model.CategoryInfrastructure,
			Location:    "42 Elm Street",
			Latitude:    ptr(40.7128),
			Longitude:   ptr(-74.0060),
			IsPublic:    true,
		},
		Steps: []step{
			{Actor: "omar@example.org", Vote: model.VoteUp},
			{Actor: "lena@example.org", Vote: model.VoteUp},
			{Actor: "omar@example.org", Comment: "Hit this on my bike yesterday."},
			{Actor: "works@city.gov", Status: model.StatusInProgress},
			{Actor: "works@city.gov", Note: "Crew scheduled for Thursday morning."},
			{Actor: "works@city.gov", Status: model.StatusResolved},
		},
	},
	{
		Author: "omar@example.org",
		Content: model.Content{
			Title:       "Streetlight out at Oak and 3rd",
			Description: "The corner light has been dark for a week, the crossing is unlit at night.",
			Category:    model.CategorySafety,
			Location:    "Oak Avenue & 3rd Street",
			IsPublic:    true,
		},
		Steps: []step{
			{Actor: "maya@example.org", Vote: model.VoteUp},
			{Actor: "works@city.gov", Status: model.StatusInProgress},
		},
	},
	{
		Author: "lena@example.org",
		Content: model.Content{
			Title:       "Overflowing bins in Riverside Park",
			Description: "Bins near the playground have not been emptied since the weekend.",
			Category:    model.CategoryEnvironment,
			Location:    "Riverside Park playground",
			IsPublic:    true,
		},
		Steps: []step{
			{Actor: "maya@example.org", Vote: model.VoteDown},
			{Actor: "parks@city.gov", Status: model.StatusInProgress},
			{Actor: "parks@city.gov", Status: model.StatusResolved},
		},
	},
	{
		Author: "maya@example.org",
		Content: model.Content{
			Title:       "Water pressure drop on Birch Lane",
			Description: "Very low water pressure in the mornings for the last three days.",
			Category:    model.CategoryUtilities,
			Location:    "Birch Lane",
			IsPublic:    false,
		},
	},
	{
		Author: "omar@example.org",
		Content: model.Content{
			Title:       "Graffiti on the library wall",
			Description: "Large tag on the east wall facing the car park.",
			Category:    model.CategoryOther,
			Location:    "Central Library",
			IsPublic:    true,
		},
		Steps: []step{
			{Actor: "works@city.gov", Status: model.StatusRejected},
		},
	},
}

// seed creates the users and reports that do not exist yet.
func seed(ctx context.Context, a *app.App, out io.Writer) error {
	byEmail := make(map[string]*model.User, len(users))
	for _, u := range users {
		created, err := a.Users.Register(ctx, u.Email, u.Name, u.Role)
		switch {
		case errors.Is(err, service.ErrDuplicateEmail):
			existing, gerr := a.Users.GetByEmail(ctx, u.Email)
			if gerr != nil {
				return fmt.Errorf("look up %s: %w", u.Email, gerr)
			}
			byEmail[u.Email] = existing
			fmt.Fprintf(out, "  user   %-22s (exists)\n", u.Email)
		case err != nil:
			return fmt.Errorf("register %s: %w", u.Email, err)
		default:
			byEmail[u.Email] = created
			fmt.Fprintf(out, "  user   %-22s %s\n", u.Email, u.Role)
		}
	}

	for _, def := range reports {
		author := byEmail[def.Author]
		existing, err := a.Reports.List(ctx, author, feed.Criteria{OwnerID: author.ID, Query: def.Content.Title})
		if err != nil {
			return fmt.Errorf("list reports: %w", err)
		}
		if len(existing) > 0 {
			fmt.Fprintf(out, "  report %q (exists)\n", def.Content.Title)
			continue
		}

		r, err := a.Reports.Create(ctx, author, def.Content)
		if err != nil {
			return fmt.Errorf("create %q: %w", def.Content.Title, err)
		}
		for _, s := range def.Steps {
			if err := apply(ctx, a, byEmail[s.Actor], r.ID, s); err != nil {
				return fmt.Errorf("%q: %w", def.Content.Title, err)
			}
		}
		fmt.Fprintf(out, "  report %q created with %d follow-ups\n", def.Content.Title, len(def.Steps))
	}
	return nil
}

func apply(ctx context.Context, a *app.App, actor *model.User, id string, s step) error {
	var err error
	switch {
	case s.Status != "":
		_, err = a.Reports.Transition(ctx, actor, id, s.Status)
	case s.Comment != "":
		_, err = a.Reports.AddComment(ctx, actor, id, s.Comment)
	case s.Note != "":
		_, err = a.Reports.AddNote(ctx, actor, id, s.Note)
	case s.Vote != "":
		_, err = a.Reports.Vote(ctx, actor, id, s.Vote)
	default:
		err = errors.New("empty seed step")
	}
	return err
}
