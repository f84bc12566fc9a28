package ewcs

import (
	"io"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

type LinkConfig struct {
	Port string
	Baud int
}

type CameraConfig struct {
	Port       string
	Baud       int
	DeviceID   int
	PacketSize int
	ImageDir   string
}

type Config struct {
	StationName string
	PIC24       LinkConfig
	Camera      CameraConfig
}

// LoadConfig reads a TOML config file relative to the binary location.
func LoadConfig(fileName string) (*Config, error) {
	dir, err := filepath.Abs(filepath.Dir(os.Args[0]))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to determine binary location")
	}
	file, err := os.Open(filepath.Join(dir, fileName))
	if err != nil {
		return nil, errors.Wrapf(err, "unable to open file %s", fileName)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

func LoadConfigFromReader(configReader io.Reader) (*Config, error) {
	configData, err := io.ReadAll(configReader)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read config reader")
	}
	config := Config{
		StationName: "ewcs",
		PIC24: LinkConfig{
			Port: "/dev/ttyUSB0",
			Baud: 115200,
		},
		Camera: CameraConfig{
			Port:       "/dev/ttyUSB1",
			Baud:       115200,
			DeviceID:   1,
			PacketSize: 768,
			ImageDir:   "data/images",
		},
	}
	if _, err := toml.Decode(string(configData), &config); err != nil {
		return nil, errors.Wrapf(err, "unable to load station configuration")
	}
	if config.Camera.DeviceID < 0 || config.Camera.DeviceID > 255 {
		return nil, errors.Errorf("camera device id out of range: %v", config.Camera.DeviceID)
	}
	if config.Camera.PacketSize <= 0 {
		return nil, errors.Errorf("camera packet size out of range: %v", config.Camera.PacketSize)
	}
	return &config, nil
}
