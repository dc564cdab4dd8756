// Command devredis runs an in-memory miniredis instance for local
// development against btu-scheduler-daemon, so a developer can exercise
// the Due-Time Index and RQ writer without a real Redis server. Adapted
// from the teacher's cmd/redis_server.
package main

import (
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/alicebob/miniredis/v2"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:6379", "address for the in-memory Redis to listen on")
	flag.Parse()

	s := miniredis.NewMiniRedis()
	if err := s.StartAddr(*addr); err != nil {
		log.Fatalf("failed to start dev redis: %v", err)
	}
	defer s.Close()

	log.Printf("dev redis listening on %s", s.Addr())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Println("shutting down dev redis")
}
