package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultInputDir           = "mp3"
	defaultFeedPath           = "kylecast.xml"
	defaultBaseURL            = "https://designer-kyle.github.io/KyleCast/"
	defaultMediaPath          = "mp3/"
	defaultAudioExtension     = ".mp3"
	defaultAuthor             = "Kyle Inabinette"
	defaultChannelTitle       = "KyleCast"
	defaultChannelDescription = "Episodes published by episode-publisher."
	defaultChannelLanguage    = "en"
	defaultProvider           = ProviderOpenAI
	defaultTranscriptionModel = "whisper-1"
	defaultChatModel          = "gpt-4"
	defaultGeminiModel        = "gemini-2.5-flash"
	defaultDebounce           = 2 * time.Second
	defaultEnvFile            = ".env"
)

// Supported metadata extraction backends.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

var (
	// ErrMissingCredential is returned when a required API key is not set.
	ErrMissingCredential = errors.New("missing credential")
	// ErrInvalid marks configuration that cannot be used for a run.
	ErrInvalid = errors.New("invalid configuration")
)

// Options holds the raw command-line flags and environment overrides.
// Empty values mean "not set" and leave defaults or the YAML file in charge.
type Options struct {
	ConfigFile         string        `long:"config" env:"PODCAST_CONFIG" description:"YAML file with publisher and channel settings"`
	InputDir           string        `long:"input-dir" env:"PODCAST_INPUT_DIR" description:"Directory scanned for audio files (default: mp3)"`
	FeedPath           string        `long:"feed" env:"PODCAST_FEED_PATH" description:"RSS feed document to update (default: kylecast.xml)"`
	BaseURL            string        `long:"base-url" env:"PODCAST_BASE_URL" description:"Public base URL of the podcast site"`
	MediaPath          string        `long:"media-path" env:"PODCAST_MEDIA_PATH" description:"Path segment under the base URL holding audio files (default: mp3/)"`
	AudioExtension     string        `long:"ext" env:"PODCAST_AUDIO_EXTENSION" description:"Audio file extension to publish (default: .mp3)"`
	Author             string        `long:"author" env:"PODCAST_AUTHOR" description:"Author written on every new item"`
	Rich               bool          `short:"r" long:"rich" env:"PODCAST_RICH" description:"Also extract description, tags and duration (off by default: items carry the title only)"`
	Provider           string        `long:"llm-provider" env:"PODCAST_LLM_PROVIDER" description:"Metadata backend: openai or gemini"`
	TranscriptionModel string        `long:"transcription-model" env:"PODCAST_TRANSCRIPTION_MODEL" description:"Speech-to-text model (default: whisper-1)"`
	ChatModel          string        `long:"chat-model" env:"PODCAST_CHAT_MODEL" description:"OpenAI chat model (default: gpt-4)"`
	GeminiModel        string        `long:"gemini-model" env:"PODCAST_GEMINI_MODEL" description:"Gemini model (default: gemini-2.5-flash)"`
	APIBaseURL         string        `long:"api-base-url" env:"OPENAI_BASE_URL" description:"Override the OpenAI API endpoint"`
	CachePath          string        `long:"cache" env:"PODCAST_CACHE" description:"SQLite file caching transcripts between runs (disabled when empty)"`
	InitFeed           bool          `long:"init-feed" description:"Create the feed document when it does not exist"`
	DryRun             bool          `long:"dry-run" description:"List the files that would be published without calling any API"`
	Watch              bool          `short:"w" long:"watch" env:"PODCAST_WATCH" description:"Keep running and publish new files as they appear"`
	Debounce           time.Duration `long:"debounce" env:"PODCAST_DEBOUNCE" description:"Delay between a file event and the next pass in watch mode (default: 2s)"`
}

// Channel is the channel-level metadata used when a new feed is created.
type Channel struct {
	Title       string
	Link        string
	Description string
	Language    string
	Author      string
}

// Config is the resolved configuration passed into the publishing workflow.
type Config struct {
	InputDir       string
	FeedPath       string
	BaseURL        string
	MediaPath      string
	AudioExtension string
	Rich           bool
	Author         string
	Channel        Channel

	Provider           string
	TranscriptionModel string
	ChatModel          string
	GeminiModel        string
	APIBaseURL         string
	CachePath          string

	InitFeed bool
	DryRun   bool
	Watch    bool
	Debounce time.Duration
}

// Credentials are resolved once at startup and handed to the remote clients.
type Credentials struct {
	OpenAIKey string
	GeminiKey string
}

type fileConfig struct {
	InputDir       string `yaml:"input_dir"`
	FeedPath       string `yaml:"feed_path"`
	BaseURL        string `yaml:"base_url"`
	MediaPath      string `yaml:"media_path"`
	AudioExtension string `yaml:"audio_extension"`
	Rich           bool   `yaml:"rich"`
	Author         string `yaml:"author"`
	Provider       string `yaml:"provider"`
	CachePath      string `yaml:"cache_path"`
	Debounce       string `yaml:"debounce"`
	Models         struct {
		Transcription string `yaml:"transcription"`
		Chat          string `yaml:"chat"`
		Gemini        string `yaml:"gemini"`
	} `yaml:"models"`
	Channel struct {
		Title       string `yaml:"title"`
		Link        string `yaml:"link"`
		Description string `yaml:"description"`
		Language    string `yaml:"language"`
	} `yaml:"channel"`
}

// ParseArgs parses command-line arguments and environment overrides.
func ParseArgs(args []string) (Options, error) {
	var opts Options
	parser := flags.NewParser(&opts, flags.HelpFlag|flags.PassDoubleDash)
	parser.Name = "episode-publisher"
	rest, err := parser.ParseArgs(args)
	if err != nil {
		return Options{}, err
	}
	if len(rest) > 0 {
		return Options{}, fmt.Errorf("unexpected arguments: %s", strings.Join(rest, " "))
	}
	return opts, nil
}

// IsHelp reports whether err is the go-flags help request.
func IsHelp(err error) bool {
	var flagsErr *flags.Error
	return errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp
}

// LoadEnvFile loads KEY=VALUE pairs into the process environment without
// overriding variables that are already set. A missing file is not an error.
func LoadEnvFile(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		path = defaultEnvFile
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	return godotenv.Load(path)
}

// Default returns the configuration used when nothing is overridden.
func Default() Config {
	return Config{
		InputDir:       defaultInputDir,
		FeedPath:       defaultFeedPath,
		BaseURL:        defaultBaseURL,
		MediaPath:      defaultMediaPath,
		AudioExtension: defaultAudioExtension,
		Author:         defaultAuthor,
		Channel: Channel{
			Title:       defaultChannelTitle,
			Description: defaultChannelDescription,
			Language:    defaultChannelLanguage,
		},
		Provider:           defaultProvider,
		TranscriptionModel: defaultTranscriptionModel,
		ChatModel:          defaultChatModel,
		GeminiModel:        defaultGeminiModel,
		Debounce:           defaultDebounce,
	}
}

// Resolve applies defaults, then the YAML file named by opts (when set), then
// the flag and environment values, and validates the result.
func Resolve(opts Options) (Config, error) {
	cfg := Default()

	if path := strings.TrimSpace(opts.ConfigFile); path != "" {
		if err := cfg.applyFile(expandHome(path)); err != nil {
			return Config{}, fmt.Errorf("%w: config file %s: %v", ErrInvalid, path, err)
		}
	}

	cfg.applyOptions(opts)
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return err
	}

	setString(&c.InputDir, fc.InputDir)
	setString(&c.FeedPath, fc.FeedPath)
	setString(&c.BaseURL, fc.BaseURL)
	setString(&c.MediaPath, fc.MediaPath)
	setString(&c.AudioExtension, fc.AudioExtension)
	setString(&c.Author, fc.Author)
	setString(&c.Provider, fc.Provider)
	setString(&c.CachePath, fc.CachePath)
	setString(&c.TranscriptionModel, fc.Models.Transcription)
	setString(&c.ChatModel, fc.Models.Chat)
	setString(&c.GeminiModel, fc.Models.Gemini)
	setString(&c.Channel.Title, fc.Channel.Title)
	setString(&c.Channel.Link, fc.Channel.Link)
	setString(&c.Channel.Description, fc.Channel.Description)
	setString(&c.Channel.Language, fc.Channel.Language)
	if fc.Rich {
		c.Rich = true
	}
	if value := strings.TrimSpace(fc.Debounce); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("debounce: %w", err)
		}
		c.Debounce = d
	}
	return nil
}

func (c *Config) applyOptions(opts Options) {
	setString(&c.InputDir, opts.InputDir)
	setString(&c.FeedPath, opts.FeedPath)
	setString(&c.BaseURL, opts.BaseURL)
	setString(&c.MediaPath, opts.MediaPath)
	setString(&c.AudioExtension, opts.AudioExtension)
	setString(&c.Author, opts.Author)
	setString(&c.Provider, opts.Provider)
	setString(&c.TranscriptionModel, opts.TranscriptionModel)
	setString(&c.ChatModel, opts.ChatModel)
	setString(&c.GeminiModel, opts.GeminiModel)
	setString(&c.APIBaseURL, opts.APIBaseURL)
	setString(&c.CachePath, opts.CachePath)
	if opts.Rich {
		c.Rich = true
	}
	if opts.Debounce > 0 {
		c.Debounce = opts.Debounce
	}
	c.InitFeed = opts.InitFeed
	c.DryRun = opts.DryRun
	c.Watch = opts.Watch
}

func (c *Config) normalize() {
	c.InputDir = expandHome(c.InputDir)
	c.FeedPath = expandHome(c.FeedPath)
	if c.CachePath != "" {
		c.CachePath = expandHome(c.CachePath)
	}

	ext := strings.ToLower(strings.TrimSpace(c.AudioExtension))
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	c.AudioExtension = ext

	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.Channel.Author = c.Author
	if c.Channel.Link == "" {
		c.Channel.Link = c.BaseURL
	}
}

// Validate checks that the configuration can drive a run. The input
// directory must exist and the feed file must exist unless InitFeed is set.
func (c Config) Validate() error {
	if c.AudioExtension == "" || c.AudioExtension == "." {
		return fmt.Errorf("%w: audio extension is empty", ErrInvalid)
	}

	base, err := url.Parse(c.BaseURL)
	if err != nil || (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return fmt.Errorf("%w: base URL %q must be an absolute http(s) URL", ErrInvalid, c.BaseURL)
	}

	switch c.Provider {
	case ProviderOpenAI, ProviderGemini:
	default:
		return fmt.Errorf("%w: unknown llm provider %q (supported: openai, gemini)", ErrInvalid, c.Provider)
	}

	info, err := os.Stat(c.InputDir)
	if err != nil {
		return fmt.Errorf("%w: input directory: %v", ErrInvalid, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%w: input path %s is not a directory", ErrInvalid, c.InputDir)
	}

	info, err = os.Stat(c.FeedPath)
	switch {
	case err == nil && info.IsDir():
		return fmt.Errorf("%w: feed path %s is a directory", ErrInvalid, c.FeedPath)
	case errors.Is(err, os.ErrNotExist) && c.InitFeed:
	case err != nil:
		return fmt.Errorf("%w: feed file: %v", ErrInvalid, err)
	}

	if c.Watch && c.Debounce <= 0 {
		return fmt.Errorf("%w: debounce must be positive", ErrInvalid)
	}
	return nil
}

// ResolveCredentials reads the API keys required by provider through lookup,
// which is normally os.Getenv. The OpenAI key is always required because
// transcription runs on OpenAI.
func ResolveCredentials(provider string, lookup func(string) string) (Credentials, error) {
	if lookup == nil {
		lookup = os.Getenv
	}
	creds := Credentials{
		OpenAIKey: strings.TrimSpace(lookup("OPENAI_API_KEY")),
		GeminiKey: strings.TrimSpace(lookup("GEMINI_API_KEY")),
	}
	if creds.OpenAIKey == "" {
		return Credentials{}, fmt.Errorf("%w: OPENAI_API_KEY is not set", ErrMissingCredential)
	}
	if provider == ProviderGemini && creds.GeminiKey == "" {
		return Credentials{}, fmt.Errorf("%w: GEMINI_API_KEY is not set", ErrMissingCredential)
	}
	return creds, nil
}

func setString(dst *string, value string) {
	if value = strings.TrimSpace(value); value != "" {
		*dst = value
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		home, err := os.UserHomeDir()
		if err == nil {
			path = filepath.Join(home, path[1:])
		}
	}
	return path
}
