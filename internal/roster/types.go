package roster

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/memberhub/roster-sync/internal/membership"
)

// RemoteMember is one roster entry as served by the remote API.
type RemoteMember struct {
	Name             flexString `json:"nome_beneficiario"`
	NationalID       flexString `json:"cpf_beneficiario"`
	Email            flexString `json:"email_beneficiario"`
	Phone            flexString `json:"telefone_beneficiario"`
	BirthDate        flexString `json:"data_nascimento_beneficiario"`
	PostalCode       flexString `json:"cep_beneficiario"`
	Street           flexString `json:"logradouro_beneficiario"`
	Number           flexString `json:"numero_beneficiario"`
	Complement       flexString `json:"complemento_beneficiario"`
	District         flexString `json:"bairro_beneficiario"`
	City             flexString `json:"cidade_beneficiario"`
	State            flexString `json:"estado_beneficiario"`
	HolderNationalID flexString `json:"cpf_associado"`
}

// RawRecord converts the wire entry into the domain's un-normalised record.
func (m RemoteMember) RawRecord() membership.RawRecord {
	return membership.RawRecord{
		NationalID:       string(m.NationalID),
		HolderNationalID: string(m.HolderNationalID),
		Name:             string(m.Name),
		Email:            string(m.Email),
		Phone:            string(m.Phone),
		BirthDate:        string(m.BirthDate),
		PostalCode:       string(m.PostalCode),
		Address: membership.Address{
			Street:     string(m.Street),
			Number:     string(m.Number),
			Complement: string(m.Complement),
			District:   string(m.District),
			City:       string(m.City),
			State:      string(m.State),
		},
	}
}

// offsetRequest is the body POSTed for each offset page.
type offsetRequest struct {
	StatusCode int `json:"codigo_situacao"`
	Offset     int `json:"inicio_paginacao"`
	PageSize   int `json:"quantidade_por_pagina"`
}

// offsetResponse is one offset page.
type offsetResponse struct {
	Total   *flexInt       `json:"total_associados"`
	Members []RemoteMember `json:"associados"`
}

// paginationResponse is the page-count metadata.
type paginationResponse struct {
	TotalPages   *flexInt `json:"quantidade_paginas"`
	TotalRecords flexInt  `json:"total_registros"`
}

// flexString accepts a JSON string, number or null.
type flexString string

func (s *flexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("null")):
		*s = ""
	case len(data) > 0 && data[0] == '"':
		var v string
		if err := json.Unmarshal(data, &v); err != nil {
			return err
		}
		*s = flexString(v)
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return fmt.Errorf("expected string or number, got %s", data)
		}
		*s = flexString(n.String())
	}
	return nil
}

// flexInt accepts a JSON number or a numeric string.
type flexInt int

func (i *flexInt) UnmarshalJSON(data []byte) error {
	var s flexString
	if err := s.UnmarshalJSON(data); err != nil {
		return err
	}
	v := strings.TrimSpace(string(s))
	if v == "" {
		*i = 0
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("expected integer, got %q", v)
	}
	*i = flexInt(n)
	return nil
}
