package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/AlecAivazis/survey/v2"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/conduit-lang/autorelated/internal/cli/config"
	"github.com/conduit-lang/autorelated/internal/cli/ui"
	"github.com/conduit-lang/autorelated/internal/orm/schema"
	"github.com/conduit-lang/autorelated/internal/serializer"
	"github.com/conduit-lang/autorelated/internal/trace"
)

// errNoDescriptor is returned when no descriptor was named and none can be prompted for
var errNoDescriptor = errors.New("descriptor name required")

// interactive reports whether prompts can be shown. Tests turn it off.
var interactive = func() bool {
	return isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd())
}

// environment is everything a command needs after configuration is loaded
type environment struct {
	cfg         *config.Config
	logger      *zap.Logger
	accessor    *schema.Accessor
	descriptors *serializer.Set
	tracer      *trace.Tracer
	opts        *rootOptions
}

// loadEnvironment reads the configuration, the schema and the descriptors
func loadEnvironment(opts *rootOptions) (*environment, error) {
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return nil, err
	}

	logger := newLogger(cfg.Level(), opts.verbose)

	registry, err := schema.LoadFile(cfg.Resolve(cfg.Schema.Path))
	if err != nil {
		return nil, fmt.Errorf("failed to load schema: %w", err)
	}

	var accessorOpts []schema.AccessorOption
	if cfg.Cache.Size == 0 {
		accessorOpts = append(accessorOpts, schema.WithoutCache())
	} else {
		cache, err := schema.NewAccessorCache(cfg.Cache.Size)
		if err != nil {
			return nil, err
		}
		accessorOpts = append(accessorOpts, schema.WithCache(cache))
	}
	accessor := schema.NewAccessor(registry, accessorOpts...)

	descriptors, err := serializer.LoadDescriptors(cfg.Resolve(cfg.Descriptors.Path), accessor)
	if err != nil {
		return nil, fmt.Errorf("failed to load descriptors: %w", err)
	}

	extractor := serializer.NewExtractor(serializer.WithLogger(logger))
	tracer := trace.New(accessor, trace.WithLogger(logger), trace.WithExtractor(extractor))

	logger.Debug("environment loaded",
		zap.String("schema", cfg.Resolve(cfg.Schema.Path)),
		zap.Int("resources", registry.Count()),
		zap.Strings("descriptors", descriptors.Names()),
	)

	return &environment{
		cfg:         cfg,
		logger:      logger,
		accessor:    accessor,
		descriptors: descriptors,
		tracer:      tracer,
		opts:        opts,
	}, nil
}

// newLogger builds a stderr logger. Debug output uses the development
// encoder.
func newLogger(level zapcore.Level, verbose bool) *zap.Logger {
	if verbose {
		level = zapcore.DebugLevel
	}

	zc := zap.NewProductionConfig()
	if level == zapcore.DebugLevel {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{"stderr"}
	zc.ErrorOutputPaths = []string{"stderr"}

	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// descriptor returns the descriptor named by the first argument. Without
// arguments it prompts for one on a terminal.
func (e *environment) descriptor(cmd *cobra.Command, args []string) (serializer.Descriptor, error) {
	names := e.descriptors.Names()

	var name string
	switch {
	case len(args) > 0:
		name = args[0]
	case interactive() && len(names) > 0:
		prompt := &survey.Select{
			Message: "Select a descriptor:",
			Options: names,
		}
		if err := survey.AskOne(prompt, &name); err != nil {
			return nil, err
		}
	default:
		return nil, errNoDescriptor
	}

	d, ok := e.descriptors.Get(name)
	if !ok {
		ui.NotFound("Descriptor", name, names, "List descriptors: autorelated plan --help", e.opts.noColor).Write(cmd.ErrOrStderr())
		return nil, fmt.Errorf("unknown descriptor %q", name)
	}
	return d, nil
}

// writeJSON writes v as indented JSON
func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeDiagnostics prints each diagnostic as a warning
func writeDiagnostics(w io.Writer, diags []trace.Diagnostic, noColor bool) {
	for _, d := range diags {
		ui.Message{
			Level:   ui.LevelWarning,
			Context: d.Kind.String(),
			Problem: d.Message,
			Detail:  diagnosticDetail(d),
			NoColor: noColor,
		}.Write(w)
	}
}

func diagnosticDetail(d trace.Diagnostic) string {
	switch {
	case d.Segment != "":
		return fmt.Sprintf("segment %q of %q in %s", d.Segment, d.Path, d.Descriptor)
	case d.Path != "":
		return fmt.Sprintf("at %q in %s", d.Path, d.Descriptor)
	default:
		return d.Descriptor
	}
}
