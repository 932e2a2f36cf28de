package regression

import (
	"encoding/json"
	"fmt"

	"FinCast/internal/domain/models"
	domsvc "FinCast/internal/domain/service"
)

// RemoteParams point at a model served over HTTP.
type RemoteParams struct {
	Endpoint string `json:"endpoint"`
	Name     string `json:"name"`
}

// RemoteFactory rebuilds a remote model from its artifact.
type RemoteFactory func(meta models.ModelMeta, params RemoteParams) (domsvc.Model, error)

// Artifact is the persisted form of a trained model. Meta.Family selects which params field is set.
type Artifact struct {
	Meta      models.ModelMeta `json:"meta"`
	Linear    *RidgeParams     `json:"linear,omitempty"`
	Boosted   *BoostedParams   `json:"boosted,omitempty"`
	Forest    *ForestParams    `json:"forest,omitempty"`
	Recurrent *RecurrentParams `json:"recurrent,omitempty"`
	Direct    *DirectParams    `json:"direct,omitempty"`
	Remote    *RemoteParams    `json:"remote,omitempty"`
}

type remoteModel interface {
	domsvc.Model
	RemoteParams() RemoteParams
}

// Encode serializes a model produced by this package or a remote model.
func Encode(m domsvc.Model) ([]byte, error) {
	a := Artifact{Meta: m.Meta()}
	switch v := m.(type) {
	case *LinearModel:
		p := v.Params()
		a.Linear = &p
	case *BoostedModel:
		p := v.Params()
		a.Boosted = &p
	case *ForestModel:
		p := v.Params()
		a.Forest = &p
	case *RecurrentModel:
		p := v.Params()
		a.Recurrent = &p
	case *DirectModel:
		p := v.Params()
		a.Direct = &p
	case remoteModel:
		p := v.RemoteParams()
		a.Remote = &p
	default:
		return nil, fmt.Errorf("encode model: unsupported type %T", m)
	}
	b, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("encode model: %w", err)
	}
	return b, nil
}

// Codec decodes artifacts. Remote is optional; without it remote artifacts fail to decode.
type Codec struct {
	Remote RemoteFactory
}

func (c Codec) Decode(b []byte) (domsvc.Model, error) {
	var a Artifact
	if err := json.Unmarshal(b, &a); err != nil {
		return nil, fmt.Errorf("decode model: %w", err)
	}
	missing := func() error {
		return fmt.Errorf("decode model: %s artifact has no parameters", a.Meta.Family)
	}
	switch a.Meta.Family {
	case models.FamilyLinear:
		if a.Linear == nil {
			return nil, missing()
		}
		return NewLinearModel(a.Meta, *a.Linear), nil
	case models.FamilyGradientBoosted:
		if a.Boosted == nil {
			return nil, missing()
		}
		return NewBoostedModel(a.Meta, *a.Boosted), nil
	case models.FamilyForest:
		if a.Forest == nil {
			return nil, missing()
		}
		return NewForestModel(a.Meta, *a.Forest), nil
	case models.FamilyRecurrent:
		if a.Recurrent == nil {
			return nil, missing()
		}
		m, err := NewRecurrentModel(a.Meta, *a.Recurrent)
		if err != nil {
			return nil, fmt.Errorf("decode model: %w", err)
		}
		return m, nil
	case models.FamilyDirectLinear:
		if a.Direct == nil {
			return nil, missing()
		}
		return NewDirectModel(a.Meta, *a.Direct), nil
	case models.FamilyRemote:
		if a.Remote == nil {
			return nil, missing()
		}
		if c.Remote == nil {
			return nil, fmt.Errorf("decode model: no remote factory configured")
		}
		return c.Remote(a.Meta, *a.Remote)
	default:
		return nil, fmt.Errorf("decode model: unknown family %q", a.Meta.Family)
	}
}
