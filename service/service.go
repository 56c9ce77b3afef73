// Package service holds the one loaded activity model a process serves from.
package service

import (
	"context"
	"maps"
	"math"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"fitlife/ml"
	"fitlife/pipeline"
)

var (
	// ErrServiceNotInitialized is returned by predictions before a model is loaded.
	ErrServiceNotInitialized = errors.New("prediction service not initialized")
	// ErrAlreadyInitialized is returned by Initialize once a model is loaded.
	ErrAlreadyInitialized = errors.New("prediction service already initialized")
)

// State is the lifecycle position of a Service.
type State int

const (
	Uninitialized State = iota
	Ready
)

func (s State) String() string {
	if s == Ready {
		return "ready"
	}
	return "uninitialized"
}

// Info summarizes the loaded model.
type Info struct {
	Relation    string    `json:"relation,omitempty"`
	Features    []string  `json:"features"`
	Labels      []string  `json:"labels"`
	Nodes       int       `json:"nodes"`
	Leaves      int       `json:"leaves"`
	Depth       int       `json:"depth"`
	ModelSource string    `json:"model_source,omitempty"`
	LoadedAt    time.Time `json:"loaded_at"`
}

// loaded is published once and never mutated.
type loaded struct {
	model    *ml.Model
	schema   ml.Schema
	source   string
	loadedAt time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithCacheSize caches up to n prediction results. 0 disables the cache.
func WithCacheSize(n int) Option {
	return func(s *Service) {
		s.cacheSize = n
	}
}

// WithCharset sets the charset of schema sources.
func WithCharset(charset string) Option {
	return func(s *Service) {
		s.charset = charset
	}
}

// Service answers predictions from a single model loaded once.
type Service struct {
	logger    *zap.Logger
	cacheSize int
	charset   string

	initMu sync.Mutex
	state  atomic.Pointer[loaded]
	cache  *lru.Cache[string, ml.PredictionResult]
}

// New returns an uninitialized service. A nil logger discards output.
func New(logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	if s.cacheSize > 0 {
		// only fails for a non-positive size
		s.cache, _ = lru.New[string, ml.PredictionResult](s.cacheSize)
	}
	return s
}

// State reports whether a model has been loaded.
func (s *Service) State() State {
	if s.state.Load() == nil {
		return Uninitialized
	}
	return Ready
}

// Initialize loads the model at modelSource and, when schemaSource is not empty,
// checks it against the ARFF header at schemaSource. Nothing is published on failure.
func (s *Service) Initialize(ctx context.Context, modelSource, schemaSource string) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.state.Load() != nil {
		return ErrAlreadyInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	model, err := ml.LoadFile(modelSource)
	if err != nil {
		return errors.Wrap(err, "load model")
	}
	schema := model.Schema()
	if schemaSource != "" {
		if schema, err = pipeline.ReadSchemaFile(schemaSource, s.charset); err != nil {
			return errors.Wrap(err, "load schema")
		}
	}
	return s.publish(model, schema, modelSource)
}

// InitializeModel publishes an in-memory model with the given schema.
func (s *Service) InitializeModel(model *ml.Model, schema ml.Schema) error {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	if s.state.Load() != nil {
		return ErrAlreadyInitialized
	}
	return s.publish(model, schema, "")
}

func (s *Service) publish(model *ml.Model, schema ml.Schema, source string) error {
	if !schema.Equal(model.Schema()) {
		return errors.Wrapf(ml.ErrSchemaMismatch, "model trained on %v %v, schema declares %v %v",
			model.Schema().FeatureNames(), model.Schema().Labels(), schema.FeatureNames(), schema.Labels())
	}
	s.state.Store(&loaded{model: model, schema: schema, source: source, loadedAt: time.Now()})
	s.logger.Info("model loaded",
		zap.String("source", source),
		zap.Int("nodes", model.Size()),
		zap.Int("depth", model.Depth()),
		zap.Strings("labels", schema.Labels()))
	return nil
}

// Schema returns the loaded schema.
func (s *Service) Schema() (ml.Schema, error) {
	st := s.state.Load()
	if st == nil {
		return ml.Schema{}, ErrServiceNotInitialized
	}
	return st.schema, nil
}

// Predict returns the predicted label for v.
func (s *Service) Predict(v ml.FeatureVector) (string, error) {
	res, err := s.PredictWithConfidence(v)
	if err != nil {
		return "", err
	}
	return res.Label, nil
}

// PredictWithConfidence returns the label, its confidence and the class distribution for v.
func (s *Service) PredictWithConfidence(v ml.FeatureVector) (ml.PredictionResult, error) {
	st := s.state.Load()
	if st == nil {
		return ml.PredictionResult{}, ErrServiceNotInitialized
	}
	if s.cache == nil {
		return st.model.Predict(v)
	}
	key := cacheKey(v)
	if res, ok := s.cache.Get(key); ok {
		res.Distribution = maps.Clone(res.Distribution)
		return res, nil
	}
	res, err := st.model.Predict(v)
	if err != nil {
		return res, err
	}
	cached := res
	cached.Distribution = maps.Clone(res.Distribution)
	s.cache.Add(key, cached)
	return res, nil
}

// ModelInfo summarizes the loaded model.
func (s *Service) ModelInfo() (Info, error) {
	st := s.state.Load()
	if st == nil {
		return Info{}, ErrServiceNotInitialized
	}
	return Info{
		Relation:    st.schema.Relation,
		Features:    st.schema.FeatureNames(),
		Labels:      st.schema.Labels(),
		Nodes:       st.model.Size(),
		Leaves:      st.model.LeafCount(),
		Depth:       st.model.Depth(),
		ModelSource: st.source,
		LoadedAt:    st.loadedAt,
	}, nil
}

func cacheKey(v ml.FeatureVector) string {
	var b strings.Builder
	for i, f := range v {
		if i > 0 {
			b.WriteByte(':')
		}
		b.WriteString(strconv.FormatUint(math.Float64bits(f), 16))
	}
	return b.String()
}
