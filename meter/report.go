package meter

import (
	"time"

	"evpoint/models"
)

type TariffSource interface {
	GetActiveTariff(date time.Time) (*models.Tariff, error)
}

// AnnotateCosts fills the derived price fields on a chronological slice of
// power logs. Each row is priced with the tariff effective on its own date,
// and the cost delta covers the energy consumed since the previous row. Rows
// dated before any tariff stay at zero.
func AnnotateCosts(logs []*models.PowerLog, tariffs TariffSource) error {
	for i, log := range logs {
		tariff, err := tariffs.GetActiveTariff(log.Time)
		if err != nil {
			return err
		}
		if tariff == nil {
			continue
		}
		log.PricePerKwh = tariff.PricePerKwh
		if i == 0 {
			// the first row is the baseline register reading
			continue
		}
		delta := log.EnergyKwh - logs[i-1].EnergyKwh
		if delta < 0 {
			delta = 0
		}
		log.CostDelta = delta * tariff.PricePerKwh
	}
	return nil
}
