package config

import (
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"GoLoadController/pkg/producers"
	"GoLoadController/pkg/queue"
)

// Settings is everything the loadcontroller binary reads from its config file.
type Settings struct {
	Queue      QueueSettings
	Producers  ProducerSettings
	Controller ControllerSettings
	Metrics    MetricsSettings
	Logging    LoggingSettings

	// Template holds the Configuration fields shared by every run.
	Template map[string]interface{} `validate:"-"`
	// Variants override template fields, one run (or sweep) per entry.
	Variants []map[string]interface{} `validate:"-"`
	// MaxNumConsumers, when positive, runs every variant once per consumer
	// count from 1 to MaxNumConsumers.
	MaxNumConsumers int `validate:"gte=0"`
}

type QueueSettings struct {
	Backend     string            `validate:"oneof=redis kafka memory"`
	PollTimeout time.Duration     `validate:"gt=0,lte=1s"`
	Redis       queue.RedisConfig `validate:"-"`
	Kafka       queue.KafkaConfig `validate:"-"`
}

type ProducerSettings struct {
	Backend string `validate:"oneof=kube script simulated"`
	// CountSource selects where running producers are counted; empty means Backend.
	CountSource  string               `validate:"omitempty,oneof=kube script simulated prometheus"`
	Kube         producers.KubeConfig `validate:"-"`
	Script       ScriptSettings       `validate:"-"`
	Prometheus   PrometheusSettings   `validate:"-"`
	SimulatedLag int                  `validate:"gte=0"`
}

type ScriptSettings struct {
	Dir string `validate:"required"`
}

type PrometheusSettings struct {
	URL   string `validate:"required,url"`
	Query string
}

type ControllerSettings struct {
	StressWindowSize int `validate:"gte=1"`
	SoakWindowSize   int `validate:"gte=1"`
	BreachLimit      int `validate:"gte=1"`
	// SettleFactor times NumConsumers samples per consumer are dropped after each scale during stress.
	SettleFactor     int           `validate:"gte=0"`
	BaseSoakDuration time.Duration `validate:"gt=0"`
}

type MetricsSettings struct {
	Dir        string
	Features   []string
	ListenAddr string
}

// SetDefaults registers a default for every setting. A key without a default
// cannot be overridden from the environment.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("queue.backend", "redis")
	v.SetDefault("queue.pollTimeout", time.Second)
	v.SetDefault("queue.redis.addrs", []string{"localhost:6379"})
	v.SetDefault("queue.redis.db", 0)
	v.SetDefault("queue.redis.password", "")
	v.SetDefault("queue.redis.key", queue.DefaultRedisKey)
	v.SetDefault("queue.redis.dialTimeout", 0)
	v.SetDefault("queue.redis.readTimeout", 0)
	v.SetDefault("queue.redis.writeTimeout", 0)
	v.SetDefault("queue.redis.poolSize", 4)
	v.SetDefault("queue.kafka.brokers", []string{})
	v.SetDefault("queue.kafka.topic", "consumer_throughput")
	v.SetDefault("queue.kafka.group", "loadcontroller")

	v.SetDefault("producers.backend", "kube")
	v.SetDefault("producers.countSource", "")
	v.SetDefault("producers.kube.kubeconfig", "")
	v.SetDefault("producers.kube.namespace", "producer-consumer")
	v.SetDefault("producers.kube.deployment", "producer")
	v.SetDefault("producers.script.dir", "/scripts")
	v.SetDefault("producers.prometheus.url", "")
	v.SetDefault("producers.prometheus.query", producers.DefaultProducerCountQuery)
	v.SetDefault("producers.simulatedLag", 0)

	v.SetDefault("controller.stressWindowSize", 5)
	v.SetDefault("controller.soakWindowSize", 10)
	v.SetDefault("controller.breachLimit", 3)
	v.SetDefault("controller.settleFactor", 2)
	v.SetDefault("controller.baseSoakDuration", 313*time.Second)

	v.SetDefault("metrics.dir", "./log")
	v.SetDefault("metrics.features", []string{})
	v.SetDefault("metrics.listenAddr", "")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("maxNumConsumers", 0)

	v.SetDefault("template.description", "")
	v.SetDefault("template.numBrokers", 3)
	v.SetDefault("template.numPartitions", 0)
	v.SetDefault("template.messageSizeKB", 750)
	v.SetDefault("template.startProducerCount", 1)
	v.SetDefault("template.maxProducerCount", 16)
	v.SetDefault("template.numConsumers", 1)
	v.SetDefault("template.producerIncrementInterval", 60*time.Second)
	v.SetDefault("template.consumerTolerance", 0.85)
	v.SetDefault("template.perProducerExpectedThroughput", 75.0)
	v.SetDefault("template.ignoreThroughputThreshold", false)
	v.SetDefault("template.replicationFactor", 1)
	v.SetDefault("template.numZookeepers", 1)
	v.SetDefault("template.machineType", "n1-standard-8")
}

// Load reads settings from path (optional) and LOADCONTROLLER_* environment
// variables on top of the defaults.
func Load(v *viper.Viper, path string) (Settings, error) {
	SetDefaults(v)
	v.SetEnvPrefix("LOADCONTROLLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, errors.Wrapf(err, "reading config %s", path)
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, errors.Wrap(err, "decoding settings")
	}
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate checks the settings and the backend sections actually selected.
func (s Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		return errors.Wrap(err, "settings")
	}
	var backend interface{}
	switch s.Queue.Backend {
	case "redis":
		backend = s.Queue.Redis
	case "kafka":
		backend = s.Queue.Kafka
	}
	if backend != nil {
		if err := validate.Struct(backend); err != nil {
			return errors.Wrapf(err, "queue.%s", s.Queue.Backend)
		}
	}
	for _, source := range []string{s.Producers.Backend, s.Producers.CountSource} {
		var section interface{}
		switch source {
		case "kube":
			section = s.Producers.Kube
		case "script":
			section = s.Producers.Script
		case "prometheus":
			section = s.Producers.Prometheus
		}
		if section != nil {
			if err := validate.Struct(section); err != nil {
				return errors.Wrapf(err, "producers.%s", source)
			}
		}
	}
	return nil
}

// Configurations expands the template, variants and consumer sweep into the
// ordered list of runs, each with a fresh UID.
func (s Settings) Configurations() ([]Configuration, error) {
	variants := s.Variants
	if len(variants) == 0 {
		variants = []map[string]interface{}{{}}
	}

	var out []Configuration
	for _, variant := range variants {
		counts := []int{0}
		if s.MaxNumConsumers > 0 {
			counts = counts[:0]
			for n := 1; n <= s.MaxNumConsumers; n++ {
				counts = append(counts, n)
			}
		}
		for _, numConsumers := range counts {
			c, err := s.configuration(variant, numConsumers)
			if err != nil {
				return nil, err
			}
			c.SequenceNumber = len(out) + 1
			out = append(out, c)
		}
	}
	return out, nil
}

func (s Settings) configuration(variant map[string]interface{}, numConsumers int) (Configuration, error) {
	v := viper.New()
	if err := v.MergeConfigMap(s.Template); err != nil {
		return Configuration{}, errors.Wrap(err, "merging template")
	}
	if err := v.MergeConfigMap(variant); err != nil {
		return Configuration{}, errors.Wrap(err, "merging variant")
	}
	if numConsumers > 0 {
		v.Set("numConsumers", numConsumers)
	}

	var c Configuration
	if err := v.Unmarshal(&c); err != nil {
		return Configuration{}, errors.Wrap(err, "decoding configuration")
	}
	c.ConfigurationUID = NewUID()
	if c.NumPartitions == 0 {
		c.NumPartitions = c.NumBrokers * 3
	}
	if err := c.Validate(); err != nil {
		return Configuration{}, err
	}
	return c, nil
}
