package auth

import (
	"errors"
	"strings"

	"github.com/lotirium/blockchain-supply-chain-fintech/internal/domain"
)

// RegisterInput is what the caller provides; ValidateRegistration
// normalizes it into the wire request.
type RegisterInput struct {
	Email     string
	Password  string
	Username  string
	FirstName string
	LastName  string
	UserType  string
	Store     *StoreInput
}

type StoreInput struct {
	Name            string
	Description     string
	BusinessPhone   string
	BusinessAddress string
}

// ValidateRegistration performs the structural checks the backend also
// enforces, so a bad form never costs a network round trip. Field
// messages name the offending field.
func ValidateRegistration(in RegisterInput) (domain.RegisterRequest, error) {
	var req domain.RegisterRequest

	if strings.TrimSpace(in.Email) == "" {
		return req, errors.New("Email is required")
	}
	if in.Password == "" {
		return req, errors.New("Password must be at least 8 characters")
	}
	if strings.TrimSpace(in.Username) == "" {
		return req, errors.New("Username is required")
	}
	if strings.TrimSpace(in.FirstName) == "" {
		return req, errors.New("First name is required")
	}
	if strings.TrimSpace(in.LastName) == "" {
		return req, errors.New("Last name is required")
	}
	if strings.TrimSpace(in.UserType) == "" {
		return req, errors.New("User type is required")
	}

	role := string(domain.RoleSeller)
	if in.UserType == "buyer" {
		role = string(domain.RoleBuyer)
	}

	if in.UserType == "seller" {
		if in.Store == nil {
			return req, errors.New("Store information is required for sellers")
		}
		if strings.TrimSpace(in.Store.Name) == "" {
			return req, errors.New("Store name is required")
		}
		if strings.TrimSpace(in.Store.BusinessPhone) == "" {
			return req, errors.New("Business phone is required")
		}
		if strings.TrimSpace(in.Store.BusinessAddress) == "" {
			return req, errors.New("Business address is required")
		}
	}

	req = domain.RegisterRequest{
		Email:     strings.TrimSpace(in.Email),
		Password:  in.Password,
		Username:  strings.TrimSpace(in.Username),
		FirstName: strings.TrimSpace(in.FirstName),
		LastName:  strings.TrimSpace(in.LastName),
		Role:      role,
		UserType:  in.UserType,
	}

	if in.UserType == "seller" && in.Store != nil {
		req.Store = &domain.StoreInfo{
			Name:            strings.TrimSpace(in.Store.Name),
			Description:     strings.TrimSpace(in.Store.Description),
			BusinessEmail:   req.Email,
			BusinessPhone:   strings.TrimSpace(in.Store.BusinessPhone),
			BusinessAddress: strings.TrimSpace(in.Store.BusinessAddress),
			IsVerified:      false,
			Status:          "pending_verification",
		}
	}

	return req, nil
}
