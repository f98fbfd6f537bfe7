package pose

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config map keys.
const (
	KeyFASTThreshold        = "FASTThreshold"
	KeyMinFASTThreshold     = "MinFASTThreshold"
	KeyMaxFASTThreshold     = "MaxFASTThreshold"
	KeyThresholdStep        = "ThresholdStep"
	KeyAdaptThreshold       = "AdaptThreshold"
	KeyKeypointBudget       = "KeypointBudget"
	KeyMaxKeypoints         = "MaxKeypoints"
	KeyRepositoryScales     = "RepositoryScales"
	KeyMatchRatio           = "MatchRatio"
	KeyCrossCheckFlow       = "CrossCheckFlow"
	KeyCrossCheckError      = "CrossCheckError"
	KeyMethod               = "Method"
	KeyReprojectionError    = "ReprojectionError"
	KeyConfidence           = "Confidence"
	KeyMaxIterations        = "MaxIterations"
	KeyTimeout              = "Timeout"
	KeySeed                 = "Seed"
	KeyRefinePose           = "RefinePose"
	KeyMinCorrespondences   = "MinCorrespondences"
	KeyDetectionInterval    = "DetectionInterval"
	KeySynchronousDetection = "SynchronousDetection"
	KeyFlowWindow           = "FlowWindow"
	KeyFlowLevels           = "FlowLevels"
	KeyFlowIterations       = "FlowIterations"
	KeyFlowMinEigen         = "FlowMinEigen"
	KeyOpenCVFlow           = "OpenCVFlow"
	KeySmoothPosition       = "SmoothPosition"
	KeyFilterDt             = "FilterDt"
)

func isFixedVariable(name string) bool {
	for _, value := range Variables {
		if value.Name == name {
			return value.Fixed
		}
	}
	return false
}

// Config map parameter types.
const (
	typeString = "string"
	typeInt    = "int"
	typeBool   = "bool"
	typeFloat  = "float"
	typeEnum   = "enum:ransac,prosac,lmeds,epnp"
)

// Default variable values.
const (
	defaultFASTThreshold      = 20
	defaultMinFASTThreshold   = 5
	defaultMaxFASTThreshold   = 80
	defaultThresholdStep      = 1
	defaultKeypointBudget     = 400
	defaultMaxKeypoints       = 800
	defaultMatchRatio         = 0.5
	defaultCrossCheckError    = 1.0
	defaultMethod             = MethodRANSAC
	defaultReprojectionError  = 3.0
	defaultConfidence         = 0.99
	defaultMaxIterations      = 500
	defaultTimeout            = 15 * time.Millisecond
	defaultMinCorrespondences = 10
	defaultDetectionInterval  = 1
	defaultFlowWindow         = 21
	defaultFlowLevels         = 3
	defaultFlowIterations     = 20
	defaultFlowMinEigen       = 1e-4
	defaultFilterDt           = 1.0
)

var defaultRepositoryScales = []float64{1, 0.75, 0.5, 0.35}

// Variables describes the variables that can be used for pose tracker
// configuration. Update parses a string value into the corresponding field,
// Validate resets a bad field to its default. Fixed variables are read only
// when components are built and can't be changed on a running coordinator.
var Variables = []struct {
	Name     string
	Type     string
	Fixed    bool
	Update   func(*Config, string)
	Validate func(*Config)
}{
	{
		Name:   KeyFASTThreshold,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.FASTThreshold = parseInt(KeyFASTThreshold, v, c) },
	},
	{
		Name:   KeyMinFASTThreshold,
		Type:   typeInt,
		Fixed:  true,
		Update: func(c *Config, v string) { c.MinFASTThreshold = parseInt(KeyMinFASTThreshold, v, c) },
		Validate: func(c *Config) {
			if c.MinFASTThreshold <= 0 || c.MinFASTThreshold > 255 {
				c.LogInvalidField(KeyMinFASTThreshold, defaultMinFASTThreshold)
				c.MinFASTThreshold = defaultMinFASTThreshold
			}
		},
	},
	{
		Name:   KeyMaxFASTThreshold,
		Type:   typeInt,
		Fixed:  true,
		Update: func(c *Config, v string) { c.MaxFASTThreshold = parseInt(KeyMaxFASTThreshold, v, c) },
		Validate: func(c *Config) {
			if c.MaxFASTThreshold < c.MinFASTThreshold || c.MaxFASTThreshold > 255 {
				c.LogInvalidField(KeyMaxFASTThreshold, defaultMaxFASTThreshold)
				c.MaxFASTThreshold = maxInt(defaultMaxFASTThreshold, c.MinFASTThreshold)
			}
			// FASTThreshold is validated here since its bounds are only known now.
			if c.FASTThreshold < c.MinFASTThreshold || c.FASTThreshold > c.MaxFASTThreshold {
				def := clampInt(defaultFASTThreshold, c.MinFASTThreshold, c.MaxFASTThreshold)
				c.LogInvalidField(KeyFASTThreshold, def)
				c.FASTThreshold = def
			}
		},
	},
	{
		Name:   KeyThresholdStep,
		Type:   typeInt,
		Fixed:  true,
		Update: func(c *Config, v string) { c.ThresholdStep = parseInt(KeyThresholdStep, v, c) },
		Validate: func(c *Config) {
			if c.ThresholdStep <= 0 {
				c.LogInvalidField(KeyThresholdStep, defaultThresholdStep)
				c.ThresholdStep = defaultThresholdStep
			}
		},
	},
	{
		Name:   KeyAdaptThreshold,
		Type:   typeBool,
		Fixed:  true,
		Update: func(c *Config, v string) { c.AdaptThreshold = parseBool(KeyAdaptThreshold, v, c) },
	},
	{
		Name:   KeyKeypointBudget,
		Type:   typeInt,
		Fixed:  true,
		Update: func(c *Config, v string) { c.KeypointBudget = parseInt(KeyKeypointBudget, v, c) },
		Validate: func(c *Config) {
			if c.KeypointBudget <= 0 {
				c.LogInvalidField(KeyKeypointBudget, defaultKeypointBudget)
				c.KeypointBudget = defaultKeypointBudget
			}
		},
	},
	{
		Name:   KeyMaxKeypoints,
		Type:   typeInt,
		Fixed:  true,
		Update: func(c *Config, v string) { c.MaxKeypoints = parseInt(KeyMaxKeypoints, v, c) },
		Validate: func(c *Config) {
			if c.MaxKeypoints <= 0 {
				c.LogInvalidField(KeyMaxKeypoints, defaultMaxKeypoints)
				c.MaxKeypoints = defaultMaxKeypoints
			}
		},
	},
	{
		Name:   KeyRepositoryScales,
		Type:   typeString,
		Update: func(c *Config, v string) { c.RepositoryScales = parseFloats(KeyRepositoryScales, v, c) },
		Validate: func(c *Config) {
			valid := len(c.RepositoryScales) > 0
			for _, s := range c.RepositoryScales {
				if s <= 0 || s > 1 {
					valid = false
				}
			}
			if !valid {
				c.LogInvalidField(KeyRepositoryScales, defaultRepositoryScales)
				c.RepositoryScales = append([]float64(nil), defaultRepositoryScales...)
			}
		},
	},
	{
		Name:   KeyMatchRatio,
		Type:   typeFloat,
		Update: func(c *Config, v string) { c.MatchRatio = parseFloat(KeyMatchRatio, v, c) },
		Validate: func(c *Config) {
			if c.MatchRatio <= 0 || c.MatchRatio > 1 {
				c.LogInvalidField(KeyMatchRatio, defaultMatchRatio)
				c.MatchRatio = defaultMatchRatio
			}
		},
	},
	{
		Name:   KeyCrossCheckFlow,
		Type:   typeBool,
		Fixed:  true,
		Update: func(c *Config, v string) { c.CrossCheckFlow = parseBool(KeyCrossCheckFlow, v, c) },
	},
	{
		Name:   KeyCrossCheckError,
		Type:   typeFloat,
		Fixed:  true,
		Update: func(c *Config, v string) { c.CrossCheckError = parseFloat(KeyCrossCheckError, v, c) },
		Validate: func(c *Config) {
			if c.CrossCheckError <= 0 {
				c.LogInvalidField(KeyCrossCheckError, defaultCrossCheckError)
				c.CrossCheckError = defaultCrossCheckError
			}
		},
	},
	{
		Name: KeyMethod,
		Type: typeEnum,
		Update: func(c *Config, v string) {
			m, err := ParseEstimationMethod(v)
			if err != nil {
				c.Logger.Warning(fmt.Sprintf("invalid value for %s param", KeyMethod), "value", v)
				return
			}
			c.Method = m
		},
		Validate: func(c *Config) {
			if _, ok := methodNames[c.Method]; !ok {
				c.LogInvalidField(KeyMethod, defaultMethod)
				c.Method = defaultMethod
			}
		},
	},
	{
		Name:   KeyReprojectionError,
		Type:   typeFloat,
		Update: func(c *Config, v string) { c.ReprojectionError = parseFloat(KeyReprojectionError, v, c) },
		Validate: func(c *Config) {
			if c.ReprojectionError <= 0 {
				c.LogInvalidField(KeyReprojectionError, defaultReprojectionError)
				c.ReprojectionError = defaultReprojectionError
			}
		},
	},
	{
		Name:   KeyConfidence,
		Type:   typeFloat,
		Update: func(c *Config, v string) { c.Confidence = parseFloat(KeyConfidence, v, c) },
		Validate: func(c *Config) {
			if c.Confidence <= 0 || c.Confidence >= 1 {
				c.LogInvalidField(KeyConfidence, defaultConfidence)
				c.Confidence = defaultConfidence
			}
		},
	},
	{
		Name:   KeyMaxIterations,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.MaxIterations = parseInt(KeyMaxIterations, v, c) },
		Validate: func(c *Config) {
			if c.MaxIterations <= 0 {
				c.LogInvalidField(KeyMaxIterations, defaultMaxIterations)
				c.MaxIterations = defaultMaxIterations
			}
		},
	},
	{
		Name: KeyTimeout,
		Type: typeString,
		Update: func(c *Config, v string) {
			d, err := time.ParseDuration(v)
			if err != nil {
				c.Logger.Warning(fmt.Sprintf("expected duration for param %s", KeyTimeout), "value", v)
				return
			}
			c.Timeout = d
		},
		Validate: func(c *Config) {
			if c.Timeout <= 0 {
				c.LogInvalidField(KeyTimeout, defaultTimeout)
				c.Timeout = defaultTimeout
			}
		},
	},
	{
		Name: KeySeed,
		Type: typeInt,
		Update: func(c *Config, v string) {
			s, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				c.Logger.Warning(fmt.Sprintf("expected integer for param %s", KeySeed), "value", v)
				return
			}
			c.Seed = s
		},
	},
	{
		Name:   KeyRefinePose,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.RefinePose = parseBool(KeyRefinePose, v, c) },
	},
	{
		Name:   KeyMinCorrespondences,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.MinCorrespondences = parseInt(KeyMinCorrespondences, v, c) },
		Validate: func(c *Config) {
			if c.MinCorrespondences < 4 {
				c.LogInvalidField(KeyMinCorrespondences, defaultMinCorrespondences)
				c.MinCorrespondences = defaultMinCorrespondences
			}
		},
	},
	{
		Name:   KeyDetectionInterval,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.DetectionInterval = parseInt(KeyDetectionInterval, v, c) },
		Validate: func(c *Config) {
			if c.DetectionInterval <= 0 {
				c.LogInvalidField(KeyDetectionInterval, defaultDetectionInterval)
				c.DetectionInterval = defaultDetectionInterval
			}
		},
	},
	{
		Name:   KeySynchronousDetection,
		Type:   typeBool,
		Fixed:  true,
		Update: func(c *Config, v string) { c.SynchronousDetection = parseBool(KeySynchronousDetection, v, c) },
	},
	{
		Name:   KeyFlowWindow,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.FlowWindow = parseInt(KeyFlowWindow, v, c) },
		Validate: func(c *Config) {
			if c.FlowWindow < 3 || c.FlowWindow%2 == 0 {
				c.LogInvalidField(KeyFlowWindow, defaultFlowWindow)
				c.FlowWindow = defaultFlowWindow
			}
		},
	},
	{
		Name:   KeyFlowLevels,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.FlowLevels = parseInt(KeyFlowLevels, v, c) },
		Validate: func(c *Config) {
			if c.FlowLevels <= 0 || c.FlowLevels > 8 {
				c.LogInvalidField(KeyFlowLevels, defaultFlowLevels)
				c.FlowLevels = defaultFlowLevels
			}
		},
	},
	{
		Name:   KeyFlowIterations,
		Type:   typeInt,
		Update: func(c *Config, v string) { c.FlowIterations = parseInt(KeyFlowIterations, v, c) },
		Validate: func(c *Config) {
			if c.FlowIterations <= 0 {
				c.LogInvalidField(KeyFlowIterations, defaultFlowIterations)
				c.FlowIterations = defaultFlowIterations
			}
		},
	},
	{
		Name:   KeyFlowMinEigen,
		Type:   typeFloat,
		Update: func(c *Config, v string) { c.FlowMinEigen = parseFloat(KeyFlowMinEigen, v, c) },
		Validate: func(c *Config) {
			if c.FlowMinEigen <= 0 {
				c.LogInvalidField(KeyFlowMinEigen, defaultFlowMinEigen)
				c.FlowMinEigen = defaultFlowMinEigen
			}
		},
	},
	{
		Name:   KeyOpenCVFlow,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.OpenCVFlow = parseBool(KeyOpenCVFlow, v, c) },
	},
	{
		Name:   KeySmoothPosition,
		Type:   typeBool,
		Update: func(c *Config, v string) { c.SmoothPosition = parseBool(KeySmoothPosition, v, c) },
	},
	{
		Name:   KeyFilterDt,
		Type:   typeFloat,
		Update: func(c *Config, v string) { c.FilterDt = parseFloat(KeyFilterDt, v, c) },
		Validate: func(c *Config) {
			if c.FilterDt <= 0 {
				c.LogInvalidField(KeyFilterDt, defaultFilterDt)
				c.FilterDt = defaultFilterDt
			}
		},
	},
}

func parseInt(n, v string, c *Config) int {
	_v, err := strconv.Atoi(v)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected integer for param %s", n), "value", v)
	}
	return _v
}

func parseFloat(n, v string, c *Config) float64 {
	_v, err := strconv.ParseFloat(v, 64)
	if err != nil {
		c.Logger.Warning(fmt.Sprintf("expected float for param %s", n), "value", v)
	}
	return _v
}

func parseBool(n, v string, c *Config) (b bool) {
	switch strings.ToLower(v) {
	case "true":
		b = true
	case "false":
		b = false
	default:
		c.Logger.Warning(fmt.Sprintf("expect bool for param %s", n), "value", v)
	}
	return
}

// parseFloats parses a comma separated list of floats.
func parseFloats(n, v string, c *Config) []float64 {
	var out []float64
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			c.Logger.Warning(fmt.Sprintf("expected float list for param %s", n), "value", v)
			return nil
		}
		out = append(out, f)
	}
	return out
}
