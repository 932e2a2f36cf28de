package api

import (
	"regexp"

	"github.com/go-playground/validator/v10"

	"FinCast/internal/domain/models"
	domrepo "FinCast/internal/domain/repository"
	"FinCast/internal/services/forecast"
	xhttp "FinCast/pkg/http"
)

var symbolRe = regexp.MustCompile(`^[A-Za-z0-9]{2,20}$`)

func init() {
	tfs := make([]string, len(domrepo.Timeframes))
	for i, tf := range domrepo.Timeframes {
		tfs[i] = string(tf)
	}
	xhttp.RegisterOneOf("timeframe", tfs...)
	xhttp.RegisterOneOf("mode", string(forecast.ModeIterative), string(forecast.ModeDirect))
	xhttp.RegisterOneOf("family",
		string(models.FamilyLinear),
		string(models.FamilyGradientBoosted),
		string(models.FamilyForest),
		string(models.FamilyRecurrent),
		string(models.FamilyDirectLinear),
	)
	xhttp.RegisterValidation("symbol", func(fl validator.FieldLevel) bool {
		return symbolRe.MatchString(fl.Field().String())
	})
}
