package main

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noah-isme/preenroll-api/internal/dto"
	"github.com/noah-isme/preenroll-api/internal/enrollment"
	"github.com/noah-isme/preenroll-api/internal/models"
)

func newStatusCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show whether you can enroll and what you already enrolled",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := a.signIn(cmd.Context())
			if err != nil {
				return err
			}
			printStudent(a.out, session.Student())
			printView(a.out, session)
			if status := session.Status(); status != nil && status.HasConfirmedEnrollment {
				printReceipt(a.out, status)
			}
			return nil
		},
	}
}

func newPeriodsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "periods",
		Short: "List the active, upcoming and past enrollment periods",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := a.signIn(cmd.Context())
			if err != nil {
				return err
			}
			periods := session.Periods()
			fmt.Fprintf(a.out, "Today: %s\n\n", periods.Today)
			if periods.ActivePeriod != nil {
				fmt.Fprintln(a.out, "Active")
				printPeriods(a.out, []models.Period{*periods.ActivePeriod})
			} else {
				fmt.Fprintln(a.out, "No active period")
			}
			if len(periods.UpcomingPeriods) > 0 {
				fmt.Fprintln(a.out, "\nUpcoming")
				printPeriods(a.out, periods.UpcomingPeriods)
			}
			if len(periods.PastPeriods) > 0 {
				fmt.Fprintln(a.out, "\nPast")
				printPeriods(a.out, periods.PastPeriods)
			}
			return nil
		},
	}
}

func newOfferingsCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "offerings",
		Short: "List the subjects you may select, by category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := a.signIn(cmd.Context())
			if err != nil {
				return err
			}
			if view := session.View(); view != enrollment.ViewOpen {
				printView(a.out, session)
				return nil
			}
			offerings := session.Offerings()
			printOfferings(a.out, "NORMAL", offerings.Normal)
			printOfferings(a.out, "ADELANTO", offerings.Advance)
			printOfferings(a.out, "RECURSAMIENTO", offerings.Retake)
			fmt.Fprintf(a.out, "\nUp to %d subjects in total.\n", session.Ledger().Max())
			return nil
		},
	}
}

type enrollOptions struct {
	normal    []int
	advance   []int
	retake    []int
	allNormal bool
	yes       bool
}

func newEnrollCommand(a *app) *cobra.Command {
	opts := &enrollOptions{}
	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Select subjects and submit them as one batch",
		Example: "  preenroll enroll --normal 11,12 --advance 42\n" +
			"  preenroll enroll --all-normal --retake 7 --yes",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			session, err := a.signIn(cmd.Context())
			if err != nil {
				return err
			}
			if view := session.View(); view != enrollment.ViewOpen {
				printView(a.out, session)
				return fmt.Errorf("%w: view is %s", enrollment.ErrSelectionLocked, view)
			}
			if err := applySelection(session, opts); err != nil {
				return err
			}

			req, err := session.Review()
			if err != nil {
				return err
			}
			printReview(a.out, session.Offerings(), req)
			if !opts.yes {
				ok, err := a.confirm("Submit this enrollment?")
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(a.out, "Nothing was submitted.")
					return nil
				}
			}

			resp, err := session.Submit(cmd.Context())
			if err != nil {
				return describe(err)
			}
			fmt.Fprintln(a.out, resp.Message)
			if status := session.Status(); status != nil && status.HasConfirmedEnrollment {
				printReceipt(a.out, status)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.IntSliceVar(&opts.normal, "normal", nil, "career subject ids to take in their regular semester")
	flags.IntSliceVar(&opts.advance, "advance", nil, "career subject ids from the next two semesters")
	flags.IntSliceVar(&opts.retake, "retake", nil, "career subject ids from earlier semesters")
	flags.BoolVar(&opts.allNormal, "all-normal", false, "select every NORMAL offering first")
	flags.BoolVarP(&opts.yes, "yes", "y", false, "submit without asking for confirmation")
	return cmd
}

// applySelection feeds the flags into the ledger. Rejected toggles are reported
// through the notifier; the command fails only when nothing ends up selected.
func applySelection(session *enrollment.Session, opts *enrollOptions) error {
	if opts.allNormal {
		if _, err := session.SelectAllNormal(); err != nil {
			return err
		}
	}
	picks := []struct {
		cat enrollment.Category
		ids []int
	}{
		{enrollment.Normal, opts.normal},
		{enrollment.Advance, opts.advance},
		{enrollment.Retake, opts.retake},
	}
	for _, pick := range picks {
		for _, id := range pick.ids {
			if session.Ledger().Contains(pick.cat, id) {
				continue
			}
			if _, err := session.Toggle(pick.cat, id); err != nil {
				return err
			}
		}
	}
	if session.Ledger().Total() == 0 {
		return errors.New("no subjects selected, see `preenroll offerings`")
	}
	return nil
}

func printStudent(w io.Writer, s *models.Student) {
	if s == nil {
		return
	}
	fmt.Fprintf(w, "%s (%d)\n%s, semester %d, group %d\n\n", s.Name, s.StudentID, s.Career.Name, s.Semester, s.GroupNo)
}

func printView(w io.Writer, session *enrollment.Session) {
	period := session.ActivePeriod()
	switch session.View() {
	case enrollment.ViewOpen:
		fmt.Fprintf(w, "Enrollment for %s is open until %s.\n", period.PeriodID, period.EndDate)
	case enrollment.ViewConfirmed:
		fmt.Fprintf(w, "Your enrollment for %s is confirmed.\n", period.PeriodID)
	case enrollment.ViewClosed:
		if period == nil {
			fmt.Fprintln(w, "There is no active enrollment period.")
			return
		}
		fmt.Fprintf(w, "Enrollment for %s runs from %s to %s and is closed now.\n", period.PeriodID, period.StartDate, period.EndDate)
	case enrollment.ViewError:
		fmt.Fprintf(w, "Could not load your enrollment: %v\n", session.Err())
	default:
		fmt.Fprintln(w, "Loading...")
	}
}

func printReceipt(w io.Writer, status *dto.EnrollmentStatusResponse) {
	if status.Summary != nil {
		fmt.Fprintf(w, "\n%d subjects: %d normal, %d adelanto, %d recursamiento\n",
			status.Summary.Total, status.Summary.Normal, status.Summary.Adelanto, status.Summary.Recursamiento)
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SUBJECT\tTYPE\tSTATE")
	for _, item := range status.Enrollments {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", item.SubjectName, item.Type, item.State)
	}
	_ = tw.Flush()
}

func printPeriods(w io.Writer, periods []models.Period) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, p := range periods {
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", p.PeriodID, p.StartDate, p.EndDate)
	}
	_ = tw.Flush()
}

func printOfferings(w io.Writer, label string, items []models.CareerSubject) {
	fmt.Fprintf(w, "%s\n", label)
	if len(items) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, item := range items {
		fmt.Fprintf(tw, "  %d\t%s\tsemester %d\n", item.CareerSubjectID, item.Subject.Name, item.Semester)
	}
	_ = tw.Flush()
}

func printReview(w io.Writer, offerings enrollment.Offerings, req dto.EnrollmentBatchRequest) {
	names := make(map[int]string)
	for _, group := range [][]models.CareerSubject{offerings.Normal, offerings.Advance, offerings.Retake} {
		for _, item := range group {
			names[item.CareerSubjectID] = item.Subject.Name
		}
	}
	fmt.Fprintf(w, "\nPeriod %s, %d subjects:\n", req.PeriodID, len(req.Items))
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, item := range req.Items {
		fmt.Fprintf(tw, "  %d\t%s\t%s\n", item.CareerSubjectID, names[item.CareerSubjectID], strings.ToLower(string(item.Type)))
	}
	_ = tw.Flush()
}
