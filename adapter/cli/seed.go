package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/therapia/internal/app"
	availabilityCommands "github.com/felixgeelhaar/therapia/internal/availability/application/commands"
	catalogCommands "github.com/felixgeelhaar/therapia/internal/catalog/application/commands"
	sharedDomain "github.com/felixgeelhaar/therapia/internal/shared/domain"
	waitlistCommands "github.com/felixgeelhaar/therapia/internal/waitlist/application/commands"
)

// SeedOptions controls the demo data.
type SeedOptions struct {
	Days      int
	TZ        string
	OpenHour  int
	CloseHour int
	Waitlist  int
	RandSeed  uint64
}

// SeedResult counts what was created.
type SeedResult struct {
	Services        int
	SkippedServices int
	Slots           int
	WaitlistEntries int
}

var demoCatalog = []catalogCommands.ServiceInput{
	{
		Slug: "individual-session", Name: "Individual session",
		Price: "5000.00", Currency: "RUB", DurationMinutes: 50,
		Formats:         []string{"online", "offline"},
		CancelFreeHours: 24, CancelPartialHours: 6, RescheduleMinHours: 24,
	},
	{
		Slug: "couples-session", Name: "Couples session",
		Price: "8000.00", Currency: "RUB", Deposit: "2000.00", DurationMinutes: 90,
		Formats:         []string{"offline"},
		CancelFreeHours: 48, CancelPartialHours: 12, RescheduleMinHours: 48,
	},
	{
		Slug: "intro-call", Name: "Introductory call",
		Price: "1500.00", Currency: "RUB", DurationMinutes: 30,
		Formats:         []string{"online"},
		CancelFreeHours: 2, CancelPartialHours: 0, RescheduleMinHours: 2,
	},
}

// Seed creates the demo catalog, weekday working hours for opts.Days days
// starting tomorrow and a few waitlist requests. Services that already
// exist are left alone, so running it twice only adds availability.
func Seed(ctx context.Context, c *app.Container, opts SeedOptions) (*SeedResult, error) {
	if opts.Days <= 0 {
		opts.Days = 14
	}
	if opts.TZ == "" {
		opts.TZ = c.Config.CalendarTZ
	}
	if opts.CloseHour <= opts.OpenHour {
		opts.OpenHour, opts.CloseHour = 10, 18
	}
	faker := gofakeit.New(opts.RandSeed)
	actor := Operator()
	result := &SeedResult{}

	var firstService *catalogCommands.ServiceInput
	for i := range demoCatalog {
		input := demoCatalog[i]
		if firstService == nil {
			firstService = &demoCatalog[i]
		}
		_, err := c.GetServiceHandler.Handle(ctx, input.Slug)
		if err == nil {
			result.SkippedServices++
			continue
		}
		if sharedDomain.CodeOf(err) != sharedDomain.CodeNotFound {
			return nil, err
		}
		if _, err := c.CreateServiceHandler.Handle(ctx, catalogCommands.CreateServiceCommand{
			Actor:        actor,
			ServiceInput: input,
		}); err != nil {
			return nil, fmt.Errorf("create service %s: %w", input.Slug, err)
		}
		result.Services++
	}

	loc, err := sharedDomain.LoadLocation(opts.TZ)
	if err != nil {
		return nil, err
	}
	tomorrow := c.Clock.Now().In(loc).AddDate(0, 0, 1)
	start := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), opts.OpenHour, 0, 0, 0, loc)
	end := time.Date(tomorrow.Year(), tomorrow.Month(), tomorrow.Day(), opts.CloseHour, 0, 0, 0, loc)
	created, err := c.CreateAvailabilityHandler.Handle(ctx, availabilityCommands.CreateAvailabilityCommand{
		Actor: actor,
		Start: start,
		End:   end,
		TZ:    opts.TZ,
		Recurrence: &availabilityCommands.RecurrenceInput{
			Frequency: "weekdays",
			Interval:  1,
			EndDate:   start.AddDate(0, 0, opts.Days-1),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create availability: %w", err)
	}
	result.Slots = len(created.SlotIDs)

	service, err := c.GetServiceHandler.Handle(ctx, firstService.Slug)
	if err != nil {
		return nil, err
	}
	for i := 0; i < opts.Waitlist; i++ {
		day := start.AddDate(0, 0, faker.Number(0, opts.Days-1))
		from := day.Add(time.Duration(faker.Number(0, opts.CloseHour-opts.OpenHour-1)) * time.Hour)
		to := from.Add(2 * time.Hour)
		if _, err := c.SubmitWaitlistHandler.Handle(ctx, waitlistCommands.SubmitRequestCommand{
			Actor:          actor,
			ServiceID:      service.ID,
			ContactInfo:    fmt.Sprintf("%s <%s>", faker.Name(), faker.Email()),
			PreferredStart: &from,
			PreferredEnd:   &to,
			TZ:             opts.TZ,
		}); err != nil {
			return nil, fmt.Errorf("submit waitlist request: %w", err)
		}
		result.WaitlistEntries++
	}
	return result, nil
}

var seedOpts SeedOptions

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Load demo services, availability and waitlist requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := ContainerFor(cmd.Context())
		if err != nil {
			return err
		}
		result, err := Seed(cmd.Context(), c, seedOpts)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "services created: %d (already present: %d)\n", result.Services, result.SkippedServices)
		fmt.Fprintf(out, "availability windows: %d\n", result.Slots)
		fmt.Fprintf(out, "waitlist requests: %d\n", result.WaitlistEntries)
		return nil
	},
}

func init() {
	seedCmd.Flags().IntVar(&seedOpts.Days, "days", 14, "days of availability to create")
	seedCmd.Flags().StringVar(&seedOpts.TZ, "tz", "", "time zone of the working hours (default CALENDAR_TZ)")
	seedCmd.Flags().IntVar(&seedOpts.OpenHour, "open", 10, "first working hour")
	seedCmd.Flags().IntVar(&seedOpts.CloseHour, "close", 18, "end of the working day")
	seedCmd.Flags().IntVar(&seedOpts.Waitlist, "waitlist", 3, "waitlist requests to create")
	seedCmd.Flags().Uint64Var(&seedOpts.RandSeed, "rand-seed", 0, "faker seed (0 picks a random one)")
	rootCmd.AddCommand(seedCmd)
}
