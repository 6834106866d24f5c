package main

import (
	"time"

	"github.com/agenda_os/backend/internal/models"
	"github.com/agenda_os/backend/internal/ticketing"
)

// seedDemo loads a small data set so the webhook can be exercised without a
// ticketing database.
func seedDemo(m *ticketing.Memory, now time.Time) {
	m.AddClient(models.Client{ID: "c-demo", Name: "Cliente Demo", CPF: "52998224725"})
	m.AddTechnician(models.Technician{ID: "t-ana", Name: "Ana", SectorID: "2", Priority: 1})
	m.AddTechnician(models.Technician{ID: "t-bruno", Name: "Bruno", SectorID: "2", Priority: 2})
	m.AddOrder(models.ServiceOrder{
		ID:          "os-1001",
		ClientID:    "c-demo",
		SubjectCode: "17",
		SectorID:    "2",
		Description: "Sem conexão",
		CreatedAt:   now.AddDate(0, 0, -1),
	})
	m.AddOrder(models.ServiceOrder{
		ID:          "os-1002",
		ClientID:    "c-demo",
		SubjectCode: "40",
		SectorID:    "2",
		Description: "Mudança de endereço",
		CreatedAt:   now,
	})
}
