// seed loads sample content items and schedules into the configured store.
// Run: STORE_DRIVER=sqlite go run ./cmd/seed
package main

import (
	"context"
	_ "embed"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"time"

	"github.com/fundacion-cms/content-scheduler/config"
	"github.com/fundacion-cms/content-scheduler/internal/domain"
	"github.com/fundacion-cms/content-scheduler/internal/infrastructure/backend"
	"github.com/fundacion-cms/content-scheduler/internal/recurrence"
	"github.com/fundacion-cms/content-scheduler/internal/repository"
	"github.com/fundacion-cms/content-scheduler/internal/usecase"
	"gopkg.in/yaml.v3"
)

const seedActor = "seed"

//go:embed fixtures.yaml
var defaultFixtures []byte

type contentFixture struct {
	Type    domain.ContentType   `yaml:"type"`
	ID      string               `yaml:"id"`
	TitleES string               `yaml:"title_es"`
	TitleEN string               `yaml:"title_en"`
	Status  domain.ContentStatus `yaml:"status"`
}

type recurrenceFixture struct {
	Pattern        recurrence.Frequency `yaml:"pattern"`
	Interval       int                  `yaml:"interval"`
	DaysOfWeek     []int                `yaml:"daysOfWeek"`
	MaxOccurrences int                  `yaml:"maxOccurrences"`
}

type scheduleFixture struct {
	ContentType domain.ContentType `yaml:"content_type"`
	ContentID   string             `yaml:"content_id"`
	Action      domain.Action      `yaml:"action"`
	Offset      time.Duration      `yaml:"offset"`
	Timezone    string             `yaml:"timezone"`
	Recurrence  *recurrenceFixture `yaml:"recurrence"`
}

type fixtures struct {
	Content   []contentFixture  `yaml:"content"`
	Schedules []scheduleFixture `yaml:"schedules"`
}

func parseFixtures(data []byte) (*fixtures, error) {
	var fx fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	for i, c := range fx.Content {
		if !c.Type.Valid() || c.ID == "" {
			return nil, fmt.Errorf("content[%d]: need a known type and an id", i)
		}
	}
	return &fx, nil
}

type result struct {
	content   int
	schedules []*domain.Schedule
}

// apply upserts every content item, then creates the schedules relative to now.
// Content upserts are idempotent; schedules are added on every run.
func apply(ctx context.Context, fx *fixtures, seeder repository.ContentSeeder, uc *usecase.ScheduleUsecase, now time.Time) (result, error) {
	var res result
	for _, c := range fx.Content {
		if err := seeder.UpsertContent(ctx, c.Type, c.ID, c.TitleES, c.TitleEN, c.Status); err != nil {
			return res, fmt.Errorf("upsert %s %s: %w", c.Type, c.ID, err)
		}
		res.content++
	}

	for i, s := range fx.Schedules {
		input := usecase.CreateScheduleInput{
			ContentID:     s.ContentID,
			ContentType:   s.ContentType,
			Action:        s.Action,
			ScheduledDate: now.Add(s.Offset),
			Timezone:      s.Timezone,
			CreatedBy:     seedActor,
			Metadata:      map[string]any{"source": "seed"},
		}

		if s.Recurrence == nil {
			created, err := uc.Schedule(ctx, input)
			if err != nil {
				return res, fmt.Errorf("schedule[%d]: %w", i, err)
			}
			res.schedules = append(res.schedules, created)
			continue
		}

		created, err := uc.ScheduleRecurring(ctx, usecase.CreateRecurringInput{
			CreateScheduleInput: input,
			Pattern: recurrence.Pattern{
				Frequency:      s.Recurrence.Pattern,
				Interval:       s.Recurrence.Interval,
				DaysOfWeek:     s.Recurrence.DaysOfWeek,
				MaxOccurrences: s.Recurrence.MaxOccurrences,
			},
		})
		if err != nil {
			return res, fmt.Errorf("schedule[%d]: %w", i, err)
		}
		res.schedules = append(res.schedules, created...)
	}
	return res, nil
}

func main() {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	cfg, err := config.LoadStore()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	data := defaultFixtures
	if len(os.Args) > 1 {
		if data, err = os.ReadFile(os.Args[1]); err != nil {
			log.Fatalf("read fixtures: %v", err)
		}
	}
	fx, err := parseFixtures(data)
	if err != nil {
		log.Fatal(err)
	}

	stores, err := backend.Open(ctx, *cfg, logger)
	if err != nil {
		log.Fatalf("store: %v", err)
	}

	// Seeding never executes anything, so the usecase gets no executor or poller.
	uc := usecase.NewScheduleUsecase(stores.Schedules, nil, nil, logger)
	res, err := apply(ctx, fx, stores.Seeder, uc, time.Now())
	stores.Close()
	if err != nil {
		log.Fatalf("seed: %v", err)
	}

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Store:             %s\n", stores.Name)
	fmt.Printf("  Content upserted:  %d\n", res.content)
	fmt.Printf("  Schedules created: %d\n", len(res.schedules))
	fmt.Println()
	for _, s := range res.schedules {
		fmt.Printf("    %s  %-9s %-12s %-24s %s\n", s.ID, s.Action, s.ContentType, s.ContentID, s.ScheduledDate.Format(time.RFC3339))
	}
	fmt.Println()
	fmt.Println("Try it:")
	fmt.Println()
	fmt.Println("  schedctl list --due")
	fmt.Println("  schedctl process")
	fmt.Println("  schedctl stats")
}
