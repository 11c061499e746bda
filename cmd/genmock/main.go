// Command genmock writes a deterministic synthetic RNLI returns of service
// feature collection for local runs and test fixtures. Features carry the
// same attribute set as the ArcGIS export, including the administrative
// columns the pipeline drops, and the harm subset size is exact.
//
// Usage:
//
//	go run ./cmd/genmock \
//	  -out data/RNLI_Returns_of_Service.geojson \
//	  -count 500 -harm 60 -hoax 12 -seed 7
package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/couchcryptid/rnli-heatmap/internal/adapter/geojson"
	"github.com/couchcryptid/rnli-heatmap/internal/domain"
)

// station is a lifeboat station with its launch position.
type station struct {
	name string
	lat  float64
	lon  float64
}

var stations = []station{
	{"Calshot", 50.8197, -1.3095},
	{"Hamble", 50.8610, -1.3133},
	{"Cowes", 50.7615, -1.2978},
	{"Bembridge", 50.6873, -1.0733},
	{"Portsmouth", 50.7916, -1.0977},
	{"Hayling Island", 50.7850, -0.9822},
	{"Lymington", 50.7560, -1.5326},
	{"Yarmouth", 50.7063, -1.5010},
}

var otherActivities = []string{
	"SAILING", "MOTOR BOAT", "WALKING", "SWIMMING", "FISHING",
	"KAYAKING", "CLIMBING", "MEDICAL EVACUATION",
}

var otherAICs = []string{
	"Person in danger", "Medical", "Machinery failure", "Grounding",
	"Capsize", "Person in water", "Person missing",
}

var lifeboatClasses = []string{"Atlantic 85", "D class", "Shannon", "Severn", "Tamar"}

var baseDate = time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	out := flag.String("out", "", "output path for the GeoJSON feature collection")
	count := flag.Int("count", 500, "total number of features")
	harm := flag.Int("harm", 60, "features in the harm subset")
	hoax := flag.Int("hoax", 12, "self harm features classed as hoax or false alarm")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	if *out == "" {
		flag.Usage()
		return fmt.Errorf("missing required flag: -out")
	}
	if *count < 0 || *harm < 0 || *hoax < 0 || *harm+*hoax > *count {
		return fmt.Errorf("need 0 <= harm+hoax <= count, got harm=%d hoax=%d count=%d", *harm, *hoax, *count)
	}

	// Fixed clock for reproducible administrative timestamps.
	domain.SetClock(clockwork.NewFakeClockAt(time.Date(2024, time.January, 2, 6, 0, 0, 0, time.UTC)))
	defer domain.SetClock(nil)

	features, err := generate(*count, *harm, *hoax, *seed)
	if err != nil {
		return err
	}

	data, err := geojson.Encode(features)
	if err != nil {
		return fmt.Errorf("encode features: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(*out, append(data, '\n'), 0o600); err != nil {
		return err
	}
	log.Printf("wrote %s: %d features", *out, len(features))

	printStats(features)
	return nil
}

func generate(count, harm, hoax int, seed uint64) ([]domain.Feature, error) {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:], seed)
	src := rand.NewChaCha8(key)
	rng := rand.New(src)

	kinds := make([]int, count)
	for i := range kinds {
		switch {
		case i < harm:
			kinds[i] = 1
		case i < harm+hoax:
			kinds[i] = 2
		}
	}
	rng.Shuffle(len(kinds), func(i, j int) { kinds[i], kinds[j] = kinds[j], kinds[i] })

	created := domain.Now().Format(time.RFC3339)
	features := make([]domain.Feature, 0, count)
	for i, kind := range kinds {
		st := stations[rng.IntN(len(stations))]
		launch := baseDate.Add(time.Duration(rng.IntN(365*24)) * time.Hour)

		activity := otherActivities[rng.IntN(len(otherActivities))]
		var aic any = otherAICs[rng.IntN(len(otherAICs))]
		switch kind {
		case 1:
			activity = domain.HarmActivity
			if rng.IntN(10) == 0 {
				aic = nil
			}
		case 2:
			activity = domain.HarmActivity
			aic = domain.HoaxAIC
		}

		globalID, err := uuid.NewRandomFromReader(src)
		if err != nil {
			return nil, fmt.Errorf("global id: %w", err)
		}

		features = append(features, domain.Feature{
			GeometryType: "Point",
			Point: &domain.Point{
				X: round(st.lon+(rng.Float64()-0.5)*0.2, 5),
				Y: round(st.lat+(rng.Float64()-0.5)*0.1, 5),
			},
			Properties: map[string]any{
				domain.FieldObjectID: float64(i + 1),
				domain.FieldActivity: activity,
				domain.FieldAIC:      aic,
				"Station":            st.name,
				"Lifeboat_Class":     lifeboatClasses[rng.IntN(len(lifeboatClasses))],
				"Date_of_Launch":     launch.Format(time.RFC3339),
				"Year_of_Call":       float64(launch.Year()),
				"Hour_of_Call":       float64(launch.Hour()),
				"People_Assisted":    float64(rng.IntN(4)),
				"Lives_Saved":        float64(rng.IntN(2)),
				"Time_on_Service":    round(rng.Float64()*4, 2),
				"GlobalID":           "{" + globalID.String() + "}",
				"CreationDate":       created,
				"Creator":            "rnli_data_admin",
				"EditDate":           created,
				"Editor":             "rnli_data_admin",
			},
		})
	}
	return features, nil
}

func round(v float64, places int) float64 {
	p := math.Pow10(places)
	return math.Round(v*p) / p
}

func printStats(features []domain.Feature) {
	records, err := domain.FlattenFeatures(features)
	if err != nil {
		log.Printf("stats unavailable: %v", err)
		return
	}
	subset := domain.FilterHarmSubset(records, domain.DefaultHarmPredicate())

	byStation := map[string]int{}
	for _, r := range subset {
		name, _ := r.Attributes["Station"].(string)
		byStation[name]++
	}
	names := make([]string, 0, len(byStation))
	for name := range byStation {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("features: %d\n", len(records))
	fmt.Printf("harm subset: %d\n", len(subset))
	for _, name := range names {
		fmt.Printf("  %-16s %d\n", name, byStation[name])
	}
}
