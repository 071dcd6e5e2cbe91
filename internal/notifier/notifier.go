// Package notifier tells recipients that their certificate was issued.
package notifier

import (
	"context"
	"fmt"

	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("notifier")

const Subject = "Certificate Issued"

// Notification describes one issued certificate for its recipient.
type Notification struct {
	Address        string
	Fingerprint    string
	ContentAddress string
	DownloadURL    string
	Institution    string
}

// Body renders the message sent to the recipient.
func (n Notification) Body() string {
	return fmt.Sprintf("Dear Student,\n\n"+
		"Congratulations on completing your Course. Here are your certificate details:\n\n"+
		"Certificate ID: %s\n"+
		"Download Link: %s\n\n"+
		"Best regards,\n%s", n.Fingerprint, n.DownloadURL, n.Institution)
}

// Notifier delivers notifications. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}

// LogNotifier writes notifications to the log instead of delivering them.
type LogNotifier struct{}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

func (LogNotifier) Notify(ctx context.Context, n Notification) error {
	log.Infow("Certificate notification",
		"to", n.Address,
		"subject", Subject,
		"fingerprint", n.Fingerprint,
		"cid", n.ContentAddress,
		"download_url", n.DownloadURL)
	return nil
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, n Notification) error

func (f NotifierFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
