package present

import (
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"laundry-notifier/pkg/notifier"
)

// maxCommentRunes bounds the feedback excerpt shown in a toast.
const maxCommentRunes = 80

// UnavailableText is the sticky notice shown once reconnection gives up.
const UnavailableText = "Real-time updates unavailable"

var messages = map[notifier.Kind]*template.Template{
	notifier.KindNewOrder: template.Must(template.New("new_order").Parse(
		`New order {{.Order.ID}}{{with .Order.Branch}} at {{.}}{{end}}`)),
	notifier.KindOrderUpdate: template.Must(template.New("order_update").Parse(
		`Order {{.OrderID}} status updated to {{.Status}}`)),
	notifier.KindNewFeedback: template.Must(template.New("new_feedback").Parse(
		`New feedback from {{or .Customer "a customer"}}{{with .Comment}}: {{.}}{{end}}`)),
	notifier.KindFeedbackUpdate: template.Must(template.New("feedback_update").Parse(
		`Feedback {{.FeedbackID}} marked {{.Status}}`)),
	notifier.KindProfileUpdate: template.Must(template.New("profile_update").Parse(
		`Profile updated`)),
}

var categories = map[notifier.Kind]notifier.Category{
	notifier.KindNewOrder:       notifier.CategorySuccess,
	notifier.KindOrderUpdate:    notifier.CategoryInfo,
	notifier.KindNewFeedback:    notifier.CategoryInfo,
	notifier.KindFeedbackUpdate: notifier.CategoryInfo,
	notifier.KindProfileUpdate:  notifier.CategoryInfo,
}

type feedbackView struct {
	Customer string
	Comment  string
}

// render returns the user-facing text for ev.
func render(ev notifier.Event) (string, error) {
	tmpl, ok := messages[ev.Kind()]
	if !ok {
		return "", fmt.Errorf("no message for kind %s", ev.Kind())
	}

	var data any = ev
	if fb, ok := ev.(notifier.NewFeedback); ok {
		data = feedbackView{
			Customer: fb.Feedback.Customer,
			Comment:  excerpt(plainText(fb.Feedback.Comment), maxCommentRunes),
		}
	}

	var b strings.Builder
	if err := tmpl.Execute(&b, data); err != nil {
		return "", fmt.Errorf("render %s: %w", ev.Kind(), err)
	}
	return b.String(), nil
}

// plainText strips markup from s and collapses whitespace.
func plainText(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.Join(strings.Fields(s), " ")
	}
	doc.Find("script, style").Remove()
	return strings.Join(strings.Fields(doc.Text()), " ")
}

func excerpt(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "..."
}
