package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	AppEnv   string
	LogLevel slog.Level

	// GPIOPin is the periph.io name of the sensor's data line.
	GPIOPin string

	// SensorPollInterval is the time between readout attempts. The sensor
	// needs roughly two seconds between samples.
	SensorPollInterval time.Duration

	DeviceStationID string

	MQTTBroker   string
	MQTTPort     int
	MQTTClientID string

	// SQLitePath is the local reading log. Empty disables persistence.
	SQLitePath string
}

func LoadFromEnv() (Config, error) {
	appEnv := strings.TrimSpace(os.Getenv("APP_ENV"))
	if appEnv == "" {
		appEnv = "dev"
	}
	switch appEnv {
	case "dev", "prod":
	default:
		return Config{}, fmt.Errorf("invalid APP_ENV %q (allowed: dev, prod)", appEnv)
	}

	logLevelStr := strings.TrimSpace(os.Getenv("LOG_LEVEL"))
	if logLevelStr == "" {
		logLevelStr = "info"
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	gpioPin := strings.TrimSpace(os.Getenv("GPIO_PIN"))
	if gpioPin == "" {
		gpioPin = "GPIO23"
	}

	pollIntervalStr := strings.TrimSpace(os.Getenv("SENSOR_POLL_INTERVAL"))
	if pollIntervalStr == "" {
		pollIntervalStr = "2s"
	}
	pollInterval, err := time.ParseDuration(pollIntervalStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid SENSOR_POLL_INTERVAL %q: %w", pollIntervalStr, err)
	}
	if pollInterval <= 0 {
		return Config{}, fmt.Errorf("SENSOR_POLL_INTERVAL must be positive, got %v", pollInterval)
	}

	deviceStationID := strings.TrimSpace(os.Getenv("DEVICE_STATION_ID"))
	if deviceStationID == "" {
		deviceStationID = "home"
	}

	mqttBroker := strings.TrimSpace(os.Getenv("MQTT_BROKER"))
	if mqttBroker == "" {
		mqttBroker = "localhost"
	}

	mqttPortStr := strings.TrimSpace(os.Getenv("MQTT_PORT"))
	if mqttPortStr == "" {
		mqttPortStr = "1883"
	}
	mqttPort, err := strconv.Atoi(mqttPortStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid MQTT_PORT %q: %w", mqttPortStr, err)
	}

	mqttClientID := strings.TrimSpace(os.Getenv("MQTT_CLIENT_ID"))
	if mqttClientID == "" {
		mqttClientID = "weather-station"
	}

	sqlitePath := strings.TrimSpace(os.Getenv("SQLITE_PATH"))

	return Config{
		AppEnv:             appEnv,
		LogLevel:           level,
		GPIOPin:            gpioPin,
		SensorPollInterval: pollInterval,
		DeviceStationID:    deviceStationID,
		MQTTBroker:         mqttBroker,
		MQTTPort:           mqttPort,
		MQTTClientID:       mqttClientID,
		SQLitePath:         sqlitePath,
	}, nil
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid LOG_LEVEL %q (allowed: debug, info, warn, error)", s)
	}
}
