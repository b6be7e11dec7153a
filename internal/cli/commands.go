package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-isme/enrollment-api/internal/dto"
	"github.com/noah-isme/enrollment-api/internal/models"
	"github.com/noah-isme/enrollment-api/internal/server"
)

// NewSeatsCommand creates the seats command.
func NewSeatsCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seats <class-id>",
		Short: "Show the open seats of a class",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd, func(c *server.Container) error {
				seats, err := c.Enrollments.AvailableSeats(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeResult(cmd, opts,
					fmt.Sprintf("%s: %d seats available", args[0], seats),
					dto.SeatsResponse{ClassID: args[0], AvailableSeats: seats})
			})
		},
	}
}

// NewPromoteCommand creates the promote command.
func NewPromoteCommand(opts *RootOptions) *cobra.Command {
	var at string

	cmd := &cobra.Command{
		Use:   "promote <class-id>...",
		Short: "Fill open seats from the waitlists of the given classes",
		Long: `Fill open seats from the waitlists of the given classes.

Students are seated in waitlist order. Unknown and deleted classes are skipped.

Example:
  enrollctl promote 3f1c7a4e-0b7e-4c55-9a9e-2f0f5d1c9b1a --at 2026-08-10T12:00:00Z`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var now time.Time
			if at != "" {
				parsed, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("invalid --at %q: %w", at, err)
				}
				now = parsed
			}
			return opts.withContainer(cmd, func(c *server.Container) error {
				promoted, err := c.Enrollments.Promote(cmd.Context(), args, now)
				if err != nil {
					return err
				}
				return writeResult(cmd, opts,
					fmt.Sprintf("promoted %d students", promoted),
					models.PromotionResult{Promoted: promoted})
			})
		},
	}

	cmd.Flags().StringVar(&at, "at", "", "enrollment timestamp (RFC 3339), defaults to now")

	return cmd
}

// NewAutoEnrollCommand creates the auto-enroll command.
func NewAutoEnrollCommand(opts *RootOptions) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "auto-enroll [on|off]",
		Short: "Show or toggle automatic enrollment",
		Long: `Show or toggle automatic enrollment.

Turning it on promotes waitlisted students in every open class.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				enabled bool
				toggle  = len(args) == 1
			)
			if toggle {
				parsed, err := parseSwitch(args[0])
				if err != nil {
					return err
				}
				enabled = parsed
			}
			return opts.withContainer(cmd, func(c *server.Container) error {
				if !toggle {
					enabled = c.Enrollments.AutoEnrollEnabled()
					return writeResult(cmd, opts,
						fmt.Sprintf("automatic enrollment: %s", onOff(enabled)),
						dto.AutoEnrollmentResponse{Enabled: enabled})
				}
				promoted, err := c.Enrollments.SetAutoEnroll(cmd.Context(), enabled, actor)
				if err != nil {
					return err
				}
				return writeResult(cmd, opts,
					fmt.Sprintf("automatic enrollment: %s (promoted %d)", onOff(enabled), promoted),
					dto.AutoEnrollmentResponse{Enabled: enabled, Promoted: promoted})
			})
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "enrollctl", "recorded as the author of the change")

	return cmd
}

// NewPositionCommand creates the position command.
func NewPositionCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "position <class-id> <student-id>",
		Short: "Show a student's waitlist position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withContainer(cmd, func(c *server.Container) error {
				position, err := c.Enrollments.WaitlistPosition(cmd.Context(), args[0], args[1])
				if err != nil {
					return err
				}
				return writeResult(cmd, opts,
					fmt.Sprintf("%s is #%d on the %s waitlist", args[1], position, args[0]),
					dto.WaitlistPositionResponse{ClassID: args[0], StudentID: args[1], Position: position})
			})
		},
	}
}

func parseSwitch(raw string) (bool, error) {
	switch raw {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	enabled, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid switch %q: use on or off", raw)
	}
	return enabled, nil
}

func onOff(enabled bool) string {
	if enabled {
		return "on"
	}
	return "off"
}
