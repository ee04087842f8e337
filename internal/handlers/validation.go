package handlers

import (
	"pos_service/internal/models"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
)

// RegisterValidators adds the domain binding tags used by request structs.
func RegisterValidators() error {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return nil
	}
	if err := v.RegisterValidation("payment_method", func(fl validator.FieldLevel) bool {
		return models.PaymentMethod(fl.Field().String()).Valid()
	}); err != nil {
		return err
	}
	return v.RegisterValidation("order_status", func(fl validator.FieldLevel) bool {
		return models.OrderStatus(fl.Field().String()).Valid()
	})
}
