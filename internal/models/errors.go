package models

import "github.com/pkg/errors"

var ErrDeliveryNotFound = errors.New("delivery not found")
