package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/otiai10/doggyday/internal/app"
	"github.com/otiai10/doggyday/internal/booking"
	"github.com/otiai10/doggyday/internal/storage"
)

// ErrNoBackend is returned when the app runs without Firestore
var ErrNoBackend = errors.New("booking is not available without Firestore")

var photoExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true, ".gif": true}

var dogsCmd = &cobra.Command{
	Use:   "dogs",
	Short: "Manage your dogs",
	Long: `Manage the dogs registered to the signed-in owner.

Commands:
  list     List your dogs
  add      Register a dog
  photo    Upload a dog's photo

Examples:
  doggyday dogs add --name Pochi --breed Shiba
  doggyday dogs photo <dog-id> ./pochi.jpg`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var dogsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your dogs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, owner, err := openBooking(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		dogs, err := a.Book().DogsByOwner(cmd.Context(), owner)
		if err != nil {
			return err
		}
		if len(dogs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No dogs registered.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tBREED\tPHOTO")
		for _, d := range dogs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", d.ID, d.Name, d.Breed, d.PhotoPath)
		}
		return w.Flush()
	},
}

var dogsAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Register a dog",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		breed, _ := cmd.Flags().GetString("breed")

		a, owner, err := openBooking(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		dog, err := a.Book().CreateDog(cmd.Context(), booking.Dog{Owner: owner, Name: name, Breed: breed})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %s (%s)\n", dog.Name, dog.ID)
		return nil
	},
}

var dogsPhotoCmd = &cobra.Command{
	Use:   "photo <dog-id> <file>",
	Short: "Upload a dog's photo",
	Long: `Upload a jpeg, png, webp or gif image as the dog's photo. A previous
photo is deleted once the new one is saved.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		dogID, file := args[0], args[1]
		ext := strings.ToLower(filepath.Ext(file))
		if !photoExts[ext] {
			return fmt.Errorf("unsupported photo type %q (want jpeg, png, webp or gif)", ext)
		}

		a, owner, err := openBooking(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.Objects() == nil {
			return errors.New("photo storage is not configured")
		}

		dog, err := a.Book().OwnedDog(cmd.Context(), dogID, owner)
		if err != nil {
			return err
		}

		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()
		info, err := f.Stat()
		if err != nil {
			return err
		}

		progress := make(chan storage.Progress, 8)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for p := range progress {
				if pct := p.Percent(); pct >= 0 {
					fmt.Fprintf(cmd.ErrOrStderr(), "\rUploading... %3.0f%%", pct)
				}
			}
			fmt.Fprintln(cmd.ErrOrStderr())
		}()

		objectPath := storage.GenerateFilePath(owner, "dogs", ext)
		url, err := a.Objects().Upload(cmd.Context(), objectPath, f, info.Size(), progress)
		<-done
		if err != nil {
			return fmt.Errorf("failed to upload photo: %w", err)
		}
		if err := a.Book().SetDogPhoto(cmd.Context(), dog.ID, objectPath); err != nil {
			return err
		}
		if dog.PhotoPath != "" {
			if err := a.Objects().Delete(cmd.Context(), dog.PhotoPath); err != nil && !errors.Is(err, storage.ErrNotFound) {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: old photo %s not deleted: %v\n", dog.PhotoPath, err)
			}
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Photo saved: %s\n%s\n", objectPath, url)
		return nil
	},
}

var appointmentsCmd = &cobra.Command{
	Use:     "appointments",
	Aliases: []string{"appt"},
	Short:   "Manage appointments",
	Long: `Book and review daycare appointments for your dogs.

Commands:
  list     List appointments
  book     Book an appointment
  cancel   Cancel an appointment

Examples:
  doggyday appointments book --dog <dog-id> --service daycare --date 2026-11-02
  doggyday appointments list --dog <dog-id>`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

var appointmentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List appointments of all your dogs, or one dog",
	RunE: func(cmd *cobra.Command, args []string) error {
		dogID, _ := cmd.Flags().GetString("dog")

		a, owner, err := openBooking(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		var appts []booking.Appointment
		if dogID != "" {
			if _, err := a.Book().OwnedDog(cmd.Context(), dogID, owner); err != nil {
				return err
			}
			appts, err = a.Book().ByDog(cmd.Context(), dogID)
		} else {
			appts, err = a.Book().ByOwner(cmd.Context(), owner)
		}
		if err != nil {
			return err
		}
		if len(appts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No appointments.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tDOG\tDATE\tTIME\tSERVICE\tSTATUS\tPAYMENT")
		for _, ap := range appts {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s-%s\t%s\t%s\t%s\n",
				ap.ID, ap.DogID, ap.Date.Format(time.DateOnly),
				ap.StartTime.Format("15:04"), ap.EndTime.Format("15:04"),
				ap.Service, ap.Status, ap.PaymentStatus)
		}
		return w.Flush()
	},
}

var appointmentsBookCmd = &cobra.Command{
	Use:   "book",
	Short: "Book an appointment",
	RunE: func(cmd *cobra.Command, args []string) error {
		dogID, _ := cmd.Flags().GetString("dog")
		service, _ := cmd.Flags().GetString("service")
		date, _ := cmd.Flags().GetString("date")
		start, _ := cmd.Flags().GetString("start")
		end, _ := cmd.Flags().GetString("end")
		notes, _ := cmd.Flags().GetString("notes")

		startTime, err := parseSlot(date, start)
		if err != nil {
			return err
		}
		endTime, err := parseSlot(date, end)
		if err != nil {
			return err
		}

		a, owner, err := openBooking(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.Book().OwnedDog(cmd.Context(), dogID, owner); err != nil {
			return err
		}
		appt, err := a.Book().CreateAppointment(cmd.Context(), booking.Appointment{
			DogID:     dogID,
			Service:   booking.Service(service),
			StartTime: startTime,
			EndTime:   endTime,
			Notes:     notes,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Booked %s on %s (%s)\n", appt.Service, appt.Date.Format(time.DateOnly), appt.ID)
		return nil
	},
}

var appointmentsCancelCmd = &cobra.Command{
	Use:   "cancel <appointment-id>",
	Short: "Cancel an appointment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, owner, err := openBooking(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if _, err := a.Book().OwnedAppointment(cmd.Context(), args[0], owner); err != nil {
			return err
		}
		canceled := booking.StatusCanceled
		if err := a.Book().UpdateAppointment(cmd.Context(), args[0], booking.AppointmentUpdate{Status: &canceled}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Canceled %s\n", args[0])
		return nil
	},
}

var availabilityCmd = &cobra.Command{
	Use:   "availability",
	Short: "Show remaining capacity for a day",
	Long: `Show how many dogs each service still takes on a day.

Examples:
  doggyday availability --date 2026-11-02`,
	RunE: func(cmd *cobra.Command, args []string) error {
		date, _ := cmd.Flags().GetString("date")
		day, err := time.Parse(time.DateOnly, date)
		if err != nil {
			return fmt.Errorf("invalid --date %q (want YYYY-MM-DD)", date)
		}

		a, _, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()
		if a.Availability() == nil {
			return ErrNoBackend
		}

		avail, err := a.Availability().Availability(cmd.Context(), day)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "SERVICE\tBOOKED\tCAPACITY\tOPEN")
		for _, av := range avail {
			fmt.Fprintf(w, "%s\t%d\t%d\t%t\n", av.Service, av.Booked, av.MaxPerDay, av.Open())
		}
		return w.Flush()
	},
}

func init() {
	dogsAddCmd.Flags().String("name", "", "dog name")
	dogsAddCmd.Flags().String("breed", "", "breed")
	dogsCmd.AddCommand(dogsListCmd)
	dogsCmd.AddCommand(dogsAddCmd)
	dogsCmd.AddCommand(dogsPhotoCmd)

	appointmentsListCmd.Flags().String("dog", "", "only this dog's appointments")
	appointmentsBookCmd.Flags().String("dog", "", "dog ID")
	appointmentsBookCmd.Flags().String("service", string(booking.ServiceDaycare), "daycare, grooming or boarding")
	appointmentsBookCmd.Flags().String("date", "", "day of the appointment (YYYY-MM-DD)")
	appointmentsBookCmd.Flags().String("start", "09:00", "start time (HH:MM, UTC)")
	appointmentsBookCmd.Flags().String("end", "17:00", "end time (HH:MM, UTC)")
	appointmentsBookCmd.Flags().String("notes", "", "notes for the staff")
	appointmentsCmd.AddCommand(appointmentsListCmd)
	appointmentsCmd.AddCommand(appointmentsBookCmd)
	appointmentsCmd.AddCommand(appointmentsCancelCmd)

	availabilityCmd.Flags().String("date", time.Now().UTC().Format(time.DateOnly), "day (YYYY-MM-DD)")

	rootCmd.AddCommand(dogsCmd)
	rootCmd.AddCommand(appointmentsCmd)
	rootCmd.AddCommand(availabilityCmd)
}

// openBooking opens the session and returns the signed-in owner's UID
func openBooking(cmd *cobra.Command) (*app.App, string, error) {
	a, err := openSession(cmd)
	if err != nil {
		return nil, "", err
	}
	if a.Book() == nil {
		a.Close()
		return nil, "", ErrNoBackend
	}
	user, err := currentUser(a)
	if err != nil {
		a.Close()
		return nil, "", err
	}
	return a, user.UID, nil
}

// parseSlot combines a YYYY-MM-DD day and an HH:MM time in UTC
func parseSlot(date, clock string) (time.Time, error) {
	t, err := time.Parse(time.DateOnly+" 15:04", date+" "+clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date or time %q %q (want YYYY-MM-DD and HH:MM)", date, clock)
	}
	return t, nil
}
