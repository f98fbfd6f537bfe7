package pose

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ausocean/utils/logging"
	"github.com/pkg/errors"
)

// EstimationMethod selects the robust pose estimator variant.
type EstimationMethod uint8

const (
	// MethodRANSAC samples uniformly with a fixed iteration budget
	MethodRANSAC EstimationMethod = iota
	// MethodPROSAC samples from correspondences ordered by matcher distance with an adaptive budget and a timeout
	MethodPROSAC
	// MethodLMEDS minimizes the median squared reprojection error (threshold-free)
	MethodLMEDS
	// MethodEPnP uses RANSAC consensus and recovers the final pose with planar EPnP on the inliers
	MethodEPnP
)

var methodNames = map[EstimationMethod]string{
	MethodRANSAC: "ransac",
	MethodPROSAC: "prosac",
	MethodLMEDS:  "lmeds",
	MethodEPnP:   "epnp",
}

// String returns lower-case method name
func (m EstimationMethod) String() string {
	if name, ok := methodNames[m]; ok {
		return name
	}
	return "unknown"
}

// ParseEstimationMethod parses a method name as produced by String
func ParseEstimationMethod(s string) (EstimationMethod, error) {
	for method, name := range methodNames {
		if strings.EqualFold(s, name) {
			return method, nil
		}
	}
	return MethodRANSAC, errors.Errorf("unknown estimation method %q", s)
}

// MarshalJSON encodes method as its name
func (m EstimationMethod) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON decodes method from its name
func (m *EstimationMethod) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return errors.Wrap(err, "estimation method must be a string")
	}
	parsed, err := ParseEstimationMethod(s)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// Config holds every tunable of the tracking pipeline. A zero Config is valid
// after Validate, which fills unset or bad fields with defaults.
type Config struct {
	// Logger receives diagnostics. Nil is replaced by a discarding logger.
	Logger logging.Logger `json:"-"`

	// Feature extraction.
	FASTThreshold    int  `json:"fast_threshold"`     // Segment-test intensity threshold.
	MinFASTThreshold int  `json:"min_fast_threshold"` // Lower bound for the adaptive threshold.
	MaxFASTThreshold int  `json:"max_fast_threshold"` // Upper bound for the adaptive threshold.
	ThresholdStep    int  `json:"threshold_step"`     // Adaptive threshold step per frame.
	AdaptThreshold   bool `json:"adapt_threshold"`    // Keep the keypoint count near KeypointBudget.
	KeypointBudget   int  `json:"keypoint_budget"`
	MaxKeypoints     int  `json:"max_keypoints"` // Hard cap on corners kept per image.

	// RepositoryScales are the resampling factors used when building a reference repository.
	RepositoryScales []float64 `json:"repository_scales"`

	// Matching.
	MatchRatio      float64 `json:"match_ratio"`       // Distinctiveness ratio, best < ratio*second.
	CrossCheckFlow  bool    `json:"cross_check_flow"`  // Verify new matches with forward-backward flow.
	CrossCheckError float64 `json:"cross_check_error"` // Allowed forward-backward error in pixels.

	// Robust estimation.
	Method             EstimationMethod `json:"method"`
	ReprojectionError  float64          `json:"reprojection_error"` // Inlier bound in pixels.
	Confidence         float64          `json:"confidence"`         // Desired probability of an outlier-free sample.
	MaxIterations      int              `json:"max_iterations"`
	Timeout            time.Duration    `json:"timeout"` // PROSAC wall-clock budget.
	Seed               int64            `json:"seed"`    // Sampler seed; 0 means time based.
	RefinePose         bool             `json:"refine_pose"`
	MinCorrespondences int              `json:"min_correspondences"`

	// DetectionInterval is the number of frames between background detection
	// passes. Each pass serves one target, round-robin.
	DetectionInterval int `json:"detection_interval"`

	// SynchronousDetection runs the detection pass on the caller goroutine.
	SynchronousDetection bool `json:"synchronous_detection"`

	// Optical flow.
	FlowWindow     int     `json:"flow_window"` // Odd window size in pixels.
	FlowLevels     int     `json:"flow_levels"` // Pyramid levels above the base image, 1 to 8.
	FlowIterations int     `json:"flow_iterations"`
	FlowMinEigen   float64 `json:"flow_min_eigen"`
	OpenCVFlow     bool    `json:"opencv_flow"` // Use the OpenCV tracker when built with -tags withcv.

	// Temporal filter.
	SmoothPosition bool    `json:"smooth_position"`
	FilterDt       float64 `json:"filter_dt"`
}

// NewDefaultConfig returns a validated Config with every field at its default
func NewDefaultConfig() Config {
	c := Config{}
	c.Validate()
	return c
}

// Validate checks for any errors in the config fields and defaults settings
// if particular parameters have not been defined.
func (c *Config) Validate() error {
	if c.Logger == nil {
		c.Logger = discardLogger()
	}
	for _, v := range Variables {
		if v.Validate != nil {
			v.Validate(c)
		}
	}
	return nil
}

// Update takes a map of configuration variable names and their corresponding
// values, parses the string values and sets the config struct fields.
func (c *Config) Update(vars map[string]string) {
	if c.Logger == nil {
		c.Logger = discardLogger()
	}
	for _, value := range Variables {
		if v, ok := vars[value.Name]; ok && value.Update != nil {
			value.Update(c, v)
		}
	}
}

// LogInvalidField reports that a field was bad or unset and is being defaulted
func (c *Config) LogInvalidField(name string, def interface{}) {
	c.Logger.Info(name+" bad or unset, defaulting", name, def)
}

const maxConfigFileSize = 1 << 20

// LoadConfig reads a JSON tuning file. Fields absent from the file keep
// their defaults. The returned config is validated.
func LoadConfig(path string, logger logging.Logger) (Config, error) {
	cfg := Config{Logger: logger}
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return cfg, errors.Errorf("config file must have .json extension, got %q", ext)
	}
	info, err := os.Stat(cleanPath)
	if err != nil {
		return cfg, errors.Wrap(err, "can't stat config file")
	}
	if info.Size() > maxConfigFileSize {
		return cfg, errors.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return cfg, errors.Wrap(err, "can't read config file")
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "can't parse config file %s", cleanPath)
	}
	cfg.Logger = logger
	cfg.Validate()
	return cfg, nil
}
