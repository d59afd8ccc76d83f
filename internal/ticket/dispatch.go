package ticket

import (
	"context"
	"fmt"
	"log"

	"eventcheckin/internal/attendee"
	"eventcheckin/internal/cloudinary"
	"eventcheckin/internal/queue"
)

// SendRequest asks the mail sender to deliver a ticket.
type SendRequest struct {
	AttendeeID string `json:"attendee_id"`
	Email      string `json:"email"`
	Name       string `json:"name"`
	Barcode    string `json:"barcode"`
	TicketURL  string `json:"ticket_url,omitempty"`
}

// Uploader stores a rendered ticket and returns its public URL.
type Uploader interface {
	UploadPNG(ctx context.Context, data []byte, publicID string) (*cloudinary.UploadResult, error)
}

// Publisher accepts queue messages.
type Publisher interface {
	Publish(ctx context.Context, msg queue.Message) error
}

// Dispatcher renders a ticket, uploads it when an uploader is configured and
// queues a send request.
type Dispatcher struct {
	Renderer Renderer
	Uploader Uploader
	Queue    Publisher
}

func (d *Dispatcher) SendTicket(ctx context.Context, a attendee.Attendee) error {
	req := SendRequest{AttendeeID: a.ID, Email: a.Email, Name: a.Name, Barcode: a.Barcode}

	if d.Uploader != nil {
		img, err := d.Renderer.Render(a)
		if err != nil {
			return err
		}
		res, err := d.Uploader.UploadPNG(ctx, img, "ticket-"+a.ID)
		if err != nil {
			// The mail sender can still render the ticket from the barcode.
			log.Printf("ticket upload for %s failed: %v", a.ID, err)
		} else {
			req.TicketURL = res.SecureURL
		}
	}

	if d.Queue == nil {
		return fmt.Errorf("no ticket queue configured")
	}
	msg, err := queue.NewMessage(queue.TypeTicket, req)
	if err != nil {
		return err
	}
	return d.Queue.Publish(ctx, msg)
}
