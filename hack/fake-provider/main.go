// fake-provider imitates the provider's /time_series endpoint for local
// runs: CANDLEGATE_UPSTREAM_URL=http://localhost:9000 candlegate serve
package main

import (
	"encoding/json"
	"log"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

type candle struct {
	Datetime string `json:"datetime"`
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
}

func main() {
	mux := http.NewServeMux()
	mux.HandleFunc("/time_series", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		w.Header().Set("Content-Type", "application/json")

		symbol := q.Get("symbol")
		if symbol == "" || symbol == "ZZZZ" {
			_ = json.NewEncoder(w).Encode(map[string]any{
				"code":    400,
				"message": "invalid symbol",
				"status":  "error",
			})
			return
		}

		n, err := strconv.Atoi(q.Get("outputsize"))
		if err != nil || n <= 0 {
			n = 30
		}

		price := 100 + rand.Float64()*50
		now := time.Now().Truncate(5 * time.Minute)
		values := make([]candle, 0, n)
		for i := 0; i < n; i++ {
			open := price
			price += rand.Float64()*2 - 1
			values = append(values, candle{
				Datetime: now.Add(-time.Duration(i) * 5 * time.Minute).Format("2006-01-02 15:04:05"),
				Open:     strconv.FormatFloat(open, 'f', 5, 64),
				High:     strconv.FormatFloat(max(open, price)+rand.Float64(), 'f', 5, 64),
				Low:      strconv.FormatFloat(min(open, price)-rand.Float64(), 'f', 5, 64),
				Close:    strconv.FormatFloat(price, 'f', 5, 64),
				Volume:   strconv.Itoa(rand.Intn(10000)),
			})
		}

		_ = json.NewEncoder(w).Encode(map[string]any{
			"meta": map[string]string{
				"symbol":   symbol,
				"interval": q.Get("interval"),
				"type":     "Common Stock",
			},
			"values": values,
			"status": "ok",
		})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	log.Println("fake-provider listening on :9000")
	log.Fatal(http.ListenAndServe(":9000", mux))
}
