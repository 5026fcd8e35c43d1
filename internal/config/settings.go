package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/Veraticus/shopper-spectrum/internal/common"
)

// DefaultHome is where the database and artifacts live unless configured otherwise.
const DefaultHome = "~/.config/spectrum"

// Settings is the validated view of the viper configuration.
type Settings struct {
	Data       DataSettings
	Artifacts  ArtifactSettings
	RFM        RFMSettings
	Fit        FitSettings
	Similarity SimilaritySettings
}

// DataSettings locates the transaction store.
type DataSettings struct {
	DBPath string `validate:"required"`
}

// ArtifactSettings locates published model artifacts.
type ArtifactSettings struct {
	Dir  string `validate:"required"`
	Keep int    `validate:"gte=1"`
}

// RFMSettings controls feature building.
type RFMSettings struct {
	SnapshotDate string `validate:"omitempty,datetime=2006-01-02"`
}

// FitSettings controls clustering.
type FitSettings struct {
	Criterion        string  `validate:"oneof=silhouette elbow"`
	Seed             uint64
	K                int     `validate:"gte=0"`
	KMin             int     `validate:"gte=2"`
	KMax             int     `validate:"gtefield=KMin"`
	MaxIter          int     `validate:"gt=0"`
	NInit            int     `validate:"gte=1"`
	SilhouetteSample int     `validate:"gte=0"`
	Tolerance        float64 `validate:"gt=0"`
}

// SimilaritySettings controls the product similarity build.
type SimilaritySettings struct {
	Weighting        string `validate:"oneof=quantity binary"`
	MinSupport       int    `validate:"gte=1"`
	IncludeAnonymous bool
}

var validate = validator.New()

// SetDefaults registers the default value of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("data.db_path", filepath.Join(DefaultHome, "spectrum.db"))
	v.SetDefault("artifacts.dir", filepath.Join(DefaultHome, "artifacts"))
	v.SetDefault("artifacts.keep", 5)
	v.SetDefault("rfm.snapshot_date", "")
	v.SetDefault("fit.k", 0)
	v.SetDefault("fit.k_min", 2)
	v.SetDefault("fit.k_max", 8)
	v.SetDefault("fit.criterion", "silhouette")
	v.SetDefault("fit.seed", 42)
	v.SetDefault("fit.max_iter", 300)
	v.SetDefault("fit.tolerance", 1e-4)
	v.SetDefault("fit.n_init", 10)
	v.SetDefault("fit.silhouette_sample", 2000)
	v.SetDefault("similarity.weighting", "quantity")
	v.SetDefault("similarity.min_support", 2)
	v.SetDefault("similarity.include_anonymous", false)
}

// Load reads settings from v, expands paths and validates the result.
func Load(v *viper.Viper) (*Settings, error) {
	SetDefaults(v)

	s := &Settings{
		Data: DataSettings{
			DBPath: ExpandPath(v.GetString("data.db_path")),
		},
		Artifacts: ArtifactSettings{
			Dir:  ExpandPath(v.GetString("artifacts.dir")),
			Keep: v.GetInt("artifacts.keep"),
		},
		RFM: RFMSettings{
			SnapshotDate: strings.TrimSpace(v.GetString("rfm.snapshot_date")),
		},
		Fit: FitSettings{
			K:                v.GetInt("fit.k"),
			KMin:             v.GetInt("fit.k_min"),
			KMax:             v.GetInt("fit.k_max"),
			Criterion:        v.GetString("fit.criterion"),
			Seed:             v.GetUint64("fit.seed"),
			MaxIter:          v.GetInt("fit.max_iter"),
			Tolerance:        v.GetFloat64("fit.tolerance"),
			NInit:            v.GetInt("fit.n_init"),
			SilhouetteSample: v.GetInt("fit.silhouette_sample"),
		},
		Similarity: SimilaritySettings{
			Weighting:        v.GetString("similarity.weighting"),
			MinSupport:       v.GetInt("similarity.min_support"),
			IncludeAnonymous: v.GetBool("similarity.include_anonymous"),
		},
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate checks every field against its constraints.
func (s *Settings) Validate() error {
	if err := validate.Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", common.ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", common.ErrInvalidConfig, err)
	}
	return nil
}

// Snapshot parses the configured snapshot date. The zero time means "derive from data".
func (r RFMSettings) Snapshot() (time.Time, error) {
	if r.SnapshotDate == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", r.SnapshotDate)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: rfm.snapshot_date: %v", common.ErrInvalidConfig, err)
	}
	return t, nil
}
