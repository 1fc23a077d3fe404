package config

const (
	defaultConfigPath  = "~/.config/hcnn/config.yaml"
	projectConfigName  = "hcnn.yaml"
	defaultLogFormat   = "console"
	defaultLogLevel    = "info"
	defaultModel       = "softmax"
	defaultPartition   = "rwc"
	defaultSampleRate  = 11025.0
	defaultHopLength   = 1024
	defaultFMin        = 27.5
	defaultNBins       = 252
	defaultBinsPerOct  = 36
	defaultFilterScale = 1.0

	defaultExperimentConfig     = "config.yaml"
	defaultParamsDir            = "params"
	defaultParamsFormat         = "params{epoch}.snap"
	defaultBestParams           = "best.snap"
	defaultTrainingLoss         = "training_loss.csv"
	defaultValidationLoss       = "validation_loss.csv"
	defaultPredictionsFormat    = "model_{id}_predictions.csv"
	defaultAnalysisFormat       = "model_{id}_analysis.yaml"
	defaultLedger               = "ledger.db"
	defaultPrintFrequency       = 100
	defaultWriteFrequency       = 1000
	defaultLearningRate         = 0.01
	defaultMomentum             = 0.9
	defaultSeed                 = 42
	defaultFeatureCacheSize     = 512
	defaultNumCPUs              = -1
	defaultSkipExistingFeatures = true
)

// Default returns a Config populated with repository defaults. The required
// keys (paths, data.selected, and the training bounds) have no defaults and
// must come from a document.
func Default() Config {
	return Config{
		Features: Features{
			CQT: CQT{
				SkipExisting:  defaultSkipExistingFeatures,
				NumCPUs:       defaultNumCPUs,
				SampleRate:    defaultSampleRate,
				HopLength:     defaultHopLength,
				FMin:          defaultFMin,
				NBins:         defaultNBins,
				BinsPerOctave: defaultBinsPerOct,
				FilterScale:   defaultFilterScale,
			},
		},
		Experiment: Experiment{
			ConfigPath:        defaultExperimentConfig,
			ParamsDir:         defaultParamsDir,
			ParamsFormat:      defaultParamsFormat,
			BestParams:        defaultBestParams,
			TrainingLoss:      defaultTrainingLoss,
			ValidationLoss:    defaultValidationLoss,
			PredictionsFormat: defaultPredictionsFormat,
			AnalysisFormat:    defaultAnalysisFormat,
			Ledger:            defaultLedger,
		},
		Training: Training{
			Model:                   defaultModel,
			Partition:               defaultPartition,
			IterationPrintFrequency: defaultPrintFrequency,
			IterationWriteFrequency: defaultWriteFrequency,
			Seed:                    defaultSeed,
			FeatureCacheSize:        defaultFeatureCacheSize,
			Hyperparams: Hyperparams{
				LearningRate: defaultLearningRate,
				Momentum:     defaultMomentum,
			},
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
