package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/config"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/model"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/domain/ports/repository"
	pg "github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/db/postgres"
	"github.com/TapiwanasheTrevor/bagcomics-sub003/internal/infra/logging"
)

func main() {
	cfgPath := flag.String("config", "config.yaml", "path to YAML config file")
	flag.Parse()

	// seeding never talks to the gateway
	cfg, err := config.LoadConfig(*cfgPath, true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.Log, true)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pg.NewPgxPool(ctx, cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres")
	}
	defer pool.Close()

	comics := pg.NewComicRepo(pool)
	users := pg.NewUserRepo(pool)
	cur := cfg.Payments.DefaultCurrency

	seedComics := []*model.Comic{
		{ID: "c1", Title: "Harare Nights #1", Price: 499, Currency: cur},
		{ID: "c2", Title: "Harare Nights #2", Price: 499, Currency: cur},
		{ID: "c3", Title: "Zambezi Run", Price: 799, Currency: cur},
		{ID: "c4", Title: "The Mbira Oath", Price: 1299, Currency: cur},
		{ID: "free1", Title: "Preview Collection", Currency: cur, IsFree: true},
	}
	for _, c := range seedComics {
		if err := comics.Save(ctx, repository.NoTX, c); err != nil {
			logger.Fatal().Err(err).Str("comic_id", c.ID).Msg("seed comic")
		}
		fmt.Printf("comic  %-6s %-22s %s %s\n", c.ID, c.Title, model.FormatAmount(c.Price, c.Currency), c.Currency)
	}

	seedUsers := []struct{ id, name, email string }{
		{"user-1", "Tendai Moyo", "tendai@example.com"},
		{"user-2", "Rudo Chikore", "rudo@example.com"},
	}
	for _, s := range seedUsers {
		u, err := model.NewUser(s.id, s.name, s.email)
		if err != nil {
			logger.Fatal().Err(err).Str("user_id", s.id).Msg("build user")
		}
		if err := users.Save(ctx, repository.NoTX, u); err != nil {
			logger.Fatal().Err(err).Str("user_id", s.id).Msg("seed user")
		}
		fmt.Printf("user   %-6s %s <%s>\n", u.ID, u.Name, u.Email)
	}

	fmt.Println("seeding complete")
}
