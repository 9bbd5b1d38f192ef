package service

import (
	"fmt"
	"math/rand"

	"github.com/missatech/breach-analytics/domain/entity"
)

// fourIncidentFixture is a small hand-checkable dataset spanning two
// systems, two regions, and three attack types.
func fourIncidentFixture() []entity.Incident {
	return []entity.Incident{
		{
			ID: "inc-001", System: "Billing", Region: "EU", AttackType: "Phishing",
			SensitivityLevel: 4, RecordsExposed: 1000, CostPerRecord: 150, Cost: 150000,
			DetectionTimeDays: 10, ResponseTimeDays: 3, NotificationRequired: true,
		},
		{
			ID: "inc-002", System: "Billing", Region: "EU", AttackType: "Ransomware",
			SensitivityLevel: 5, RecordsExposed: 2000, CostPerRecord: 200, Cost: 400000,
			DetectionTimeDays: 20, ResponseTimeDays: 5, NotificationRequired: true,
		},
		{
			ID: "inc-003", System: "HR", Region: "US", AttackType: "Phishing",
			SensitivityLevel: 3, RecordsExposed: 500, CostPerRecord: 100, Cost: 50000,
			DetectionTimeDays: 5, ResponseTimeDays: 2, NotificationRequired: false,
		},
		{
			ID: "inc-004", System: "HR", Region: "EU", AttackType: "Malware",
			SensitivityLevel: 2, RecordsExposed: 100, CostPerRecord: 100, Cost: 10000,
			DetectionTimeDays: 2, ResponseTimeDays: 1, NotificationRequired: false,
		},
	}
}

// misconfigurationHeavyFixture builds a 100-incident register where
// Misconfiguration accounts for 68 incidents and exactly 72% of the
// $73.6M total cost.
func misconfigurationHeavyFixture() []entity.Incident {
	systems := entity.KnownSystems
	regions := []string{"us-east1", "eu-west2", "ap-south1", "latam-north1", "us-west2"}

	incidents := make([]entity.Incident, 0, 100)
	add := func(attackType string, cost float64) {
		i := len(incidents)
		incidents = append(incidents, entity.Incident{
			ID:                   fmt.Sprintf("inc-%03d", i+1),
			System:               systems[i%len(systems)],
			Region:               regions[i%len(regions)],
			AttackType:           attackType,
			SensitivityLevel:     i%5 + 1,
			RecordsExposed:       int64(1000 + 37*i),
			CostPerRecord:        120,
			Cost:                 cost,
			DetectionTimeDays:    float64(3 + i%20),
			ResponseTimeDays:     float64(1 + i%7),
			NotificationRequired: i%3 == 0,
		})
	}

	// 67 x 779000 + 799000 = 52992000; the other 32 carry 644000 each,
	// for a 73600000 grand total.
	for i := 0; i < 67; i++ {
		add("Misconfiguration", 779000)
	}
	add("Misconfiguration", 799000)
	for i := 0; i < 20; i++ {
		add("Phishing", 644000)
	}
	for i := 0; i < 12; i++ {
		add("Ransomware", 644000)
	}
	return incidents
}

// shuffled returns a seeded permutation of incidents without mutating the
// input.
func shuffled(incidents []entity.Incident, seed int64) []entity.Incident {
	out := make([]entity.Incident, len(incidents))
	copy(out, incidents)
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
