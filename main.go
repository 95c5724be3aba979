package main

import (
	"github.com/ijatinydv/ParkEase-sub000/startup"
	"github.com/ijatinydv/ParkEase-sub000/startup/config"
)

func main() {
	cfg := config.NewConfig()
	server := startup.NewServer(cfg)
	server.Start()
}
