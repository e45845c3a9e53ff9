package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/NorbertNiderla/weather-station/internal/config"
	"github.com/NorbertNiderla/weather-station/internal/dht11"
	"github.com/NorbertNiderla/weather-station/internal/hwgpio"
	"github.com/NorbertNiderla/weather-station/internal/mqtt"
	"github.com/NorbertNiderla/weather-station/internal/store"
)

// Run polls the sensor on the configured interval and reports each reading.
// A failed readout is logged and reflected in the station's health topic;
// the loop keeps ticking. Retry pacing is the poll interval itself — the
// protocol core performs exactly one attempt per call.
func Run(ctx context.Context, cfg config.Config) error {
	slog.Info("initializing station",
		"gpio_pin", cfg.GPIOPin,
		"poll_interval", cfg.SensorPollInterval,
		"station_id", cfg.DeviceStationID,
		"mqtt_broker", cfg.MQTTBroker,
		"mqtt_port", cfg.MQTTPort,
	)

	if err := hwgpio.Init(); err != nil {
		return err
	}
	pin, err := hwgpio.Open(cfg.GPIOPin)
	if err != nil {
		return err
	}
	clock := hwgpio.NewClock()

	mqttClient, err := mqtt.NewClient(cfg, slog.Default())
	if err != nil {
		return err
	}
	go func() {
		// Connect with retry and backoff; publishing is skipped until the
		// broker is reachable.
		if err := mqttClient.Connect(ctx); err != nil {
			slog.Error("mqtt connect failed", "error", err)
		}
	}()
	defer mqttClient.Disconnect()

	var readingLog *store.Store
	if cfg.SQLitePath != "" {
		readingLog, err = store.Open(cfg.SQLitePath)
		if err != nil {
			return err
		}
		defer func() {
			if err := readingLog.Close(); err != nil {
				slog.Error("reading log close", "error", err)
			}
		}()
		slog.Info("reading log opened", "path", cfg.SQLitePath)
	}

	ticker := time.NewTicker(cfg.SensorPollInterval)
	defer ticker.Stop()

	sequence := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			reading, err := dht11.Read(pin, clock)
			if err != nil {
				slog.Warn("readout failed", "error", err)
				reportHealth(mqttClient, cfg.DeviceStationID, false)
				continue
			}

			sequence++
			now := time.Now()
			slog.Info("readout",
				"humidity_pct", reading.Humidity,
				"temperature_c", reading.Temperature,
				"sequence", sequence,
			)

			telemetry := mqtt.Telemetry{
				StationID:   cfg.DeviceStationID,
				Timestamp:   now,
				Temperature: &reading.Temperature,
				Humidity:    &reading.Humidity,
				Sequence:    &sequence,
			}
			if err := mqttClient.PublishTelemetry(telemetry); err != nil {
				slog.Warn("telemetry publish failed", "error", err)
			}
			reportHealth(mqttClient, cfg.DeviceStationID, true)

			if readingLog != nil {
				if err := readingLog.InsertReading(cfg.DeviceStationID, now, reading.Humidity, reading.Temperature); err != nil {
					slog.Error("reading log insert failed", "error", err)
				}
			}
		}
	}
}

func reportHealth(client *mqtt.Client, stationID string, healthy bool) {
	err := client.PublishStationHealth(mqtt.StationHealth{
		StationID: stationID,
		LastSeen:  time.Now(),
		Healthy:   healthy,
	})
	if err != nil {
		slog.Debug("health publish skipped", "error", fmt.Errorf("station %s: %w", stationID, err))
	}
}
