package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/rs/zerolog"

	"github.com/carescan/scanbook/internal/config"
	"github.com/carescan/scanbook/internal/db"
	redisclient "github.com/carescan/scanbook/internal/redis"
	"github.com/carescan/scanbook/internal/scan"
)

// Seeds the catalog and two weeks of scan blocks so the API has data to
// serve straight away. Safe to re-run: duplicates are skipped.

type seedType struct {
	name     string
	duration int
}

var catalog = []seedType{
	{"X-Ray", 15},
	{"MRI", 45},
	{"CT Scan", 30},
	{"Ultrasound", 20},
	{"Mammogram", 25},
	{"PET Scan", 60},
}

type block struct {
	start string
	end   string
	slots int
}

func blocksFor(duration int) []block {
	switch {
	case duration >= 45:
		return []block{
			{"09:00", "12:00", 3},
			{"13:00", "17:00", 3},
		}
	case duration >= 25:
		return []block{
			{"08:30", "12:30", 8},
			{"13:30", "17:30", 8},
		}
	default:
		return []block{
			{"08:00", "12:00", 12},
			{"13:00", "18:00", 12},
		}
	}
}

func main() {
	logger := zerolog.New(os.Stderr).With().Timestamp().Str("service", "scanbook-seed").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("config load error")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		logger.Fatal().Err(err).Msg("postgres connection error")
	}
	defer pool.Close()

	if err := db.Migrate(ctx, pool); err != nil {
		logger.Fatal().Err(err).Msg("migration error")
	}

	repo := scan.NewPgRepository(pool)
	svc := scan.NewService(repo, redisclient.NoopLocker{}, logger)

	admin := fmt.Sprintf("seed-%s", gofakeit.LetterN(8))

	created := 0
	for _, st := range catalog {
		_, err := svc.CreateScanType(ctx, st.name, st.duration, admin)
		switch {
		case err == nil:
			created++
		case errors.Is(err, scan.ErrDuplicateScanType):
			logger.Debug().Str("name", st.name).Msg("scan type already present")
		default:
			logger.Fatal().Err(err).Str("name", st.name).Msg("create scan type failed")
		}
	}
	logger.Info().Int("created", created).Int("total", len(catalog)).Msg("scan types seeded")

	today := time.Now().UTC()
	blocks := 0
	for day := 0; day < 14; day++ {
		date := today.AddDate(0, 0, day)
		if wd := date.Weekday(); wd == time.Saturday || wd == time.Sunday {
			continue
		}
		for _, st := range catalog {
			for _, b := range blocksFor(st.duration) {
				_, err := svc.CreateScan(ctx, scan.ScanParams{
					ScanType:   st.name,
					Date:       date,
					StartTime:  b.start,
					EndTime:    b.end,
					Duration:   st.duration,
					TotalSlots: b.slots,
				}, admin)
				switch {
				case err == nil:
					blocks++
				case errors.Is(err, scan.ErrDuplicateScan):
					// re-run, block already exists
				default:
					logger.Fatal().Err(err).
						Str("scan_type", st.name).
						Str("date", date.Format("2006-01-02")).
						Msg("create scan failed")
				}
			}
		}
	}
	logger.Info().Int("blocks", blocks).Msg("scan blocks seeded")
}
