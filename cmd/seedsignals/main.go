// Command seedsignals posts synthetic device signals to a running service
// for local testing. It simulates a burst of devices around an epicenter,
// which is enough to drive the quorum and dedup paths end to end.
//
// Usage:
//
//	go run ./cmd/seedsignals \
//	  -addr http://localhost:8080 \
//	  -lat 38.42 -lng 27.14 \
//	  -devices 30 -spread-km 10 -pga 0.12
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"net/http"
	"time"
)

type signalPayload struct {
	DeviceID string  `json:"device_id"`
	PGA      float64 `json:"pga"`
	Lat      float64 `json:"lat"`
	Lng      float64 `json:"lng"`
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	addr := flag.String("addr", "http://localhost:8080", "base URL of the service")
	lat := flag.Float64("lat", 38.42, "epicenter latitude")
	lng := flag.Float64("lng", 27.14, "epicenter longitude")
	devices := flag.Int("devices", 30, "number of devices in the burst")
	spreadKm := flag.Float64("spread-km", 10, "device scatter radius around the epicenter")
	pga := flag.Float64("pga", 0.12, "mean peak ground acceleration in g")
	seed := flag.Int64("seed", time.Now().UnixNano(), "random seed")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))
	client := &http.Client{Timeout: 5 * time.Second}

	accepted := 0
	for i := 0; i < *devices; i++ {
		p := signalPayload{
			DeviceID: fmt.Sprintf("seed-%04d", i),
			PGA:      jitter(rng, *pga, 0.3),
			Lat:      *lat + scatterDeg(rng, *spreadKm),
			Lng:      *lng + scatterDeg(rng, *spreadKm)/math.Cos(*lat*math.Pi/180),
		}
		status, err := post(client, *addr+"/signals", p)
		if err != nil {
			return fmt.Errorf("device %s: %w", p.DeviceID, err)
		}
		if status == http.StatusAccepted {
			accepted++
		} else {
			log.Printf("device %s: unexpected status %d", p.DeviceID, status)
		}
	}

	log.Printf("burst complete: %d/%d signals accepted", accepted, *devices)
	return nil
}

func post(client *http.Client, url string, p signalPayload) (int, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return 0, err
	}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

// jitter returns base varied by up to +-fraction.
func jitter(rng *rand.Rand, base, fraction float64) float64 {
	return base * (1 + fraction*(2*rng.Float64()-1))
}

// scatterDeg converts a uniform offset within radiusKm to degrees of
// latitude.
func scatterDeg(rng *rand.Rand, radiusKm float64) float64 {
	const kmPerDeg = 111.0
	return (2*rng.Float64() - 1) * radiusKm / kmPerDeg
}
