package repository

import "errors"

// ErrAlreadyExists - нарушение уникальности при вставке
var ErrAlreadyExists = errors.New("record already exists")
