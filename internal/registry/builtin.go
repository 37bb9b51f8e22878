package registry

import "github.com/couchcryptid/hazard-alert-service/internal/domain"

// Builtin returns the representative fixed speed cameras from the public
// Portuguese (ANSR SINCRO) and Spanish (DGT) lists.
func Builtin() []domain.HazardPoint {
	return []domain.HazardPoint{
		// Portugal
		fixed("PT-01", 38.7436, -9.1602, 80, "A1 - Lisboa", domain.CountryPortugal),
		fixed("PT-02", 41.1621, -8.6233, 90, "VCI - Porto", domain.CountryPortugal),
		fixed("PT-03", 38.6593, -9.1554, 100, "A2 - Almada", domain.CountryPortugal),
		fixed("PT-04", 37.1356, -8.5361, 120, "A22 - Algarve", domain.CountryPortugal),
		fixed("PT-05", 40.2033, -8.4102, 120, "A1 - Coimbra", domain.CountryPortugal),
		fixed("PT-06", 38.7883, -9.1121, 80, "IC2 - Sacavém", domain.CountryPortugal),
		fixed("PT-07", 38.7071, -9.3906, 80, "A5 - Cascais", domain.CountryPortugal),
		fixed("PT-08", 38.5244, -8.8882, 50, "EN10 - Setúbal", domain.CountryPortugal),
		fixed("PT-09", 39.2333, -8.6833, 90, "IC10 - Santarém", domain.CountryPortugal),
		fixed("PT-10", 41.5503, -8.4200, 90, "Circular de Braga", domain.CountryPortugal),

		// Spain
		fixed("ES-01", 40.4168, -3.7038, 70, "M-30 - Madrid", domain.CountrySpain),
		fixed("ES-02", 41.3851, 2.1734, 80, "B-10 - Barcelona", domain.CountrySpain),
		fixed("ES-03", 39.4699, -0.3763, 90, "V-30 - Valencia", domain.CountrySpain),
		fixed("ES-04", 37.3891, -5.9845, 80, "SE-30 - Sevilla", domain.CountrySpain),
		fixed("ES-05", 43.2630, -2.9350, 100, "A-8 - Bilbao", domain.CountrySpain),
		fixed("ES-06", 36.7213, -4.4214, 80, "MA-20 - Málaga", domain.CountrySpain),
		fixed("ES-07", 42.8467, -2.6716, 120, "A-1 - Vitoria", domain.CountrySpain),
		fixed("ES-08", 41.6488, -0.8891, 120, "A-2 - Zaragoza", domain.CountrySpain),
		fixed("ES-09", 43.3623, -8.4115, 80, "AC-11 - A Coruña", domain.CountrySpain),
		fixed("ES-10", 39.5696, 2.6502, 80, "Ma-20 - Palma", domain.CountrySpain),
		fixed("ES-11", 40.4637, -3.6750, 120, "A-1 km 12 - Madrid", domain.CountrySpain),
		fixed("ES-12", 40.3241, -3.7512, 100, "A-42 km 14 - Getafe", domain.CountrySpain),
	}
}

func fixed(id string, lat, lng float64, limit int, road string, country domain.Country) domain.HazardPoint {
	return domain.HazardPoint{
		ID:         id,
		Location:   domain.Location{Lat: lat, Lng: lng},
		SpeedLimit: limit,
		RoadName:   road,
		Country:    country,
		Kind:       domain.KindFixed,
	}
}
