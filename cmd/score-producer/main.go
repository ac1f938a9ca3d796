package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/IBM/sarama"
)

// LiveScoreEvent mirrors the consumer's wire format
type LiveScoreEvent struct {
	LiveMatchID string    `json:"live_match_id"`
	Score1      int       `json:"score1"`
	Score2      int       `json:"score2"`
	Timestamp   time.Time `json:"timestamp"`
}

func main() {
	// Command line flags
	brokers := flag.String("brokers", "localhost:9094", "Kafka brokers (comma-separated)")
	topic := flag.String("topic", "live-score-events", "Kafka topic")
	liveMatchID := flag.String("match", "", "Live match ID to feed scores for")
	target := flag.Int("target", 21, "Score that ends the simulated game")
	interval := flag.Duration("interval", 2*time.Second, "Delay between baskets")
	flag.Parse()

	if *liveMatchID == "" {
		log.Fatal("a -match live match ID is required")
	}

	brokerList := strings.Split(*brokers, ",")

	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("  🏀 Live Score Producer")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Printf("  Brokers:     %s\n", *brokers)
	fmt.Printf("  Topic:       %s\n", *topic)
	fmt.Printf("  Live Match:  %s\n", *liveMatchID)
	fmt.Printf("  Target:      %d points\n", *target)
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println()

	// Configure Sarama producer
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Flush.Frequency = 100 * time.Millisecond
	config.Producer.Return.Successes = true
	config.Producer.Return.Errors = true

	// Create producer
	producer, err := sarama.NewAsyncProducer(brokerList, config)
	if err != nil {
		log.Fatalf("Failed to create producer: %v", err)
	}
	defer producer.Close()

	// Handle producer errors and successes
	var successCount, errorCount int64
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for range producer.Successes() {
			atomic.AddInt64(&successCount, 1)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		for err := range producer.Errors() {
			atomic.AddInt64(&errorCount, 1)
			log.Printf("Producer error: %v", err)
		}
	}()

	// Handle shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	done := make(chan struct{})

	sendEvent := func(score1, score2 int) {
		event := LiveScoreEvent{
			LiveMatchID: *liveMatchID,
			Score1:      score1,
			Score2:      score2,
			Timestamp:   time.Now(),
		}
		data, err := json.Marshal(event)
		if err != nil {
			log.Printf("Failed to marshal event: %v", err)
			return
		}

		msg := &sarama.ProducerMessage{
			Topic: *topic,
			Key:   sarama.StringEncoder(*liveMatchID),
			Value: sarama.ByteEncoder(data),
		}

		select {
		case producer.Input() <- msg:
		case <-done:
		}
	}

	shutdown := func() {
		close(done)
		producer.AsyncClose()
		wg.Wait()
		fmt.Printf("\n✓ Completed. Sent: %d, Errors: %d\n",
			atomic.LoadInt64(&successCount), atomic.LoadInt64(&errorCount))
	}

	fmt.Println("Simulating game, press Ctrl+C to stop")
	fmt.Println()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	score1, score2 := 0, 0

	for {
		select {
		case <-sigChan:
			fmt.Println("\n\nShutting down...")
			shutdown()
			return

		case <-ticker.C:
			// Baskets are worth 1, 2 or 3 points
			points := rand.Intn(3) + 1
			if rand.Intn(2) == 0 {
				score1 += points
			} else {
				score2 += points
			}

			sendEvent(score1, score2)
			fmt.Printf("[%s] %d : %d\n", time.Now().Format("15:04:05"), score1, score2)

			if score1 >= *target || score2 >= *target {
				fmt.Println("\nGame over")
				shutdown()
				return
			}
		}
	}
}
