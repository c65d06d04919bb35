package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alecgard/okrtracker/internal/apperr"
	"github.com/alecgard/okrtracker/internal/auth"
	"github.com/alecgard/okrtracker/internal/config"
	"github.com/alecgard/okrtracker/internal/mail"
	"github.com/alecgard/okrtracker/internal/okr"
	"github.com/alecgard/okrtracker/internal/team"
	"github.com/alecgard/okrtracker/internal/user"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed a demo team with objectives and key results",
	RunE:  runSeed,
}

func init() {
	rootCmd.AddCommand(seedCmd)
}

const demoPassword = "password123"

var demoUsers = []struct {
	input user.RegisterInput
	role  auth.Role
}{
	{user.RegisterInput{Email: "alice@example.com", Password: demoPassword, Name: "Alice Admin"}, auth.RoleAdmin},
	{user.RegisterInput{Email: "bob@example.com", Password: demoPassword, Name: "Bob Member"}, auth.RoleMember},
	{user.RegisterInput{Email: "carol@example.com", Password: demoPassword, Name: "Carol Viewer"}, auth.RoleViewer},
}

var demoKeyResults = []struct {
	title   string
	target  float64
	current float64
	unit    string
}{
	{"Reach 1000 weekly active users", 1000, 420, "users"},
	{"Cut onboarding drop-off to 20%", 100, 55, "%"},
	{"Publish 6 customer case studies", 6, 1, "posts"},
}

func runSeed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	setupLogger(cfg.Log.Level)

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, cfg.Database.URL)
	if err != nil {
		return err
	}
	defer pool.Close()

	secret := cfg.Auth.JWTSecret
	if secret == "" {
		secret = "seed"
	}
	userStore := user.NewStore(pool)
	users := user.NewService(userStore, auth.NewTokenIssuer(secret, cfg.Auth.AccessTTL, cfg.Auth.RefreshTTL))
	teams := team.NewService(team.NewStore(pool), users, mail.LogSender{}, team.Options{InvitationTTL: cfg.Invitations.TTL()})
	okrs := okr.NewService(okr.NewStore(pool))

	// Check if seed has already run.
	if _, err := userStore.GetByEmail(ctx, demoUsers[0].input.Email); err == nil {
		slog.Info("demo data already exists, skipping seed")
		return nil
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return fmt.Errorf("checking existing users: %w", err)
	}

	ids := make([]string, len(demoUsers))
	for i, du := range demoUsers {
		res, err := users.Register(ctx, du.input)
		if err != nil {
			return fmt.Errorf("registering %s: %w", du.input.Email, err)
		}
		ids[i] = res.User.ID
		slog.Info("created user", "email", res.User.Email, "id", res.User.ID)
	}
	adminID := ids[0]

	desc := "Demo team created by okrtracker seed"
	t, err := teams.Create(ctx, adminID, team.CreateTeamInput{Name: "Growth", Description: &desc})
	if err != nil {
		return fmt.Errorf("creating team: %w", err)
	}
	for i, du := range demoUsers[1:] {
		uid := ids[i+1]
		if _, err := teams.AddMember(ctx, t.ID, adminID, team.AddMemberInput{UserID: &uid, Role: string(du.role)}); err != nil {
			return fmt.Errorf("adding %s: %w", du.input.Email, err)
		}
	}

	now := time.Now().UTC()
	quarterStart := time.Date(now.Year(), ((now.Month()-1)/3)*3+1, 1, 0, 0, 0, 0, time.UTC)
	o, err := okrs.CreateObjective(ctx, adminID, auth.RoleAdmin, okr.CreateObjectiveInput{
		Title:     "Grow product adoption",
		TeamID:    t.ID,
		StartDate: quarterStart.Format(time.DateOnly),
		EndDate:   quarterStart.AddDate(0, 3, -1).Format(time.DateOnly),
	})
	if err != nil {
		return fmt.Errorf("creating objective: %w", err)
	}

	for _, dk := range demoKeyResults {
		target, unit := dk.target, dk.unit
		kr, err := okrs.CreateKeyResult(ctx, o.ID, okr.CreateKeyResultInput{Title: dk.title, Target: &target, Unit: &unit})
		if err != nil {
			return fmt.Errorf("creating key result %q: %w", dk.title, err)
		}
		current := dk.current
		if _, err := okrs.UpdateKeyResult(ctx, kr.ID, ids[1], okr.UpdateKeyResultInput{Current: &current}); err != nil {
			return fmt.Errorf("recording progress on %q: %w", dk.title, err)
		}
	}

	blockers := "Waiting on analytics pipeline for drop-off numbers"
	if _, err := okrs.CreateUpdate(ctx, ids[1], okr.CreateUpdateInput{
		ObjectiveID: o.ID,
		Content:     "Activation experiments shipped; WAU climbing steadily.",
		Blockers:    &blockers,
	}); err != nil {
		return fmt.Errorf("creating update: %w", err)
	}

	fmt.Printf("\n=== Demo Data Seeded ===\n")
	fmt.Printf("Team:      %s (%s)\n", t.Name, t.ID)
	fmt.Printf("Objective: %s (%s)\n", o.Title, o.ID)
	for _, du := range demoUsers {
		fmt.Printf("User:      %-20s %-7s password %s\n", du.input.Email, du.role, demoPassword)
	}
	return nil
}
