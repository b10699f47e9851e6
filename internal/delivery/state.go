// Package delivery owns per-recipient message status: seeding at send time,
// the read/delivered sweeps, sender-facing aggregates and delete-for-me.
package delivery

import "github.com/lalith-99/chatwire/internal/models"

// Initial is the status a recipient's row starts at.
func Initial(online bool) models.DeliveryStatus {
	if online {
		return models.StatusDelivered
	}
	return models.StatusSent
}

// Aggregate is the worst status across recipients: any sent means sent,
// else any delivered means delivered, else read. A message with no
// recipients reports sent.
func Aggregate(statuses []models.DeliveryStatus) models.DeliveryStatus {
	if len(statuses) == 0 {
		return models.StatusSent
	}
	worst := models.StatusRead
	for _, s := range statuses {
		if s < worst {
			worst = s
		}
	}
	return worst
}
