package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmerrifield20/opengov/internal/model"
)

var statusLabels = map[model.Status]string{
	model.StatusPending:    "Pending",
	model.StatusInProgress: "In Progress",
	model.StatusResolved:   "Resolved",
	model.StatusRejected:   "Rejected",
}

// Notifier tells report authors about changes to their reports.
type Notifier struct {
	sender  Sender
	baseURL string
}

// NewNotifier creates a Notifier. baseURL is used to link to the report page
// and may be empty.
func NewNotifier(sender Sender, baseURL string) *Notifier {
	return &Notifier{sender: sender, baseURL: strings.TrimRight(baseURL, "/")}
}

// StatusChanged emails author that report moved from old to its current
// status.
func (n *Notifier) StatusChanged(ctx context.Context, author *model.User, report *model.Report, old model.Status) error {
	subject, body := StatusChangedMessage(author, report, old, n.baseURL)
	if err := n.sender.Send(ctx, author.Email, subject, body); err != nil {
		return fmt.Errorf("send status email for %s: %w", report.ID, err)
	}
	return nil
}

// StatusChangedMessage renders the subject and body of a status email.
func StatusChangedMessage(author *model.User, report *model.Report, old model.Status, baseURL string) (subject, body string) {
	label := statusLabels[report.Status]
	subject = fmt.Sprintf("Your report %q is now %s", report.Title, label)

	var b strings.Builder
	fmt.Fprintf(&b, "Hello %s,\n\n", author.Name)
	fmt.Fprintf(&b, "The status of your report %q changed from %s to %s.\n", report.Title, statusLabels[old], label)
	if report.Assignment != nil {
		fmt.Fprintf(&b, "It is being handled by %s.\n", report.Assignment.AuthorityName)
	}
	if report.Status == model.StatusResolved {
		b.WriteString("Thank you for helping improve your community.\n")
	}
	if baseURL != "" {
		fmt.Fprintf(&b, "\nView it at %s/reports/%s\n", baseURL, report.ID)
	}
	return subject, b.String()
}
