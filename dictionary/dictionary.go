// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package dictionary holds the in-memory model of a category/attribute
// data dictionary: categories, their typed attributes, and the
// parent/child key relationships between them. Several dictionary
// sources can be merged into one model before schema compilation.
package dictionary

import (
	"sort"

	"github.com/pkg/errors"
)

// TypeCode identifies the declared type of an attribute. Iterable
// codes mean the raw value is delimiter-split into an ordered
// sequence before typing.
type TypeCode string

const (
	TypeString          TypeCode = "string"
	TypeInteger         TypeCode = "integer"
	TypeFloat           TypeCode = "float"
	TypeDate            TypeCode = "date"
	TypeDateTime        TypeCode = "datetime"
	TypeIterableString  TypeCode = "iterable-string"
	TypeIterableInteger TypeCode = "iterable-integer"
	TypeIterableFloat   TypeCode = "iterable-float"
)

// Iterable reports whether values of this type are delimiter-split
// sequences rather than scalars.
func (t TypeCode) Iterable() bool {
	switch t {
	case TypeIterableString, TypeIterableInteger, TypeIterableFloat:
		return true
	}
	return false
}

// Element returns the scalar type underlying an iterable type code.
// For scalar codes it returns the code unchanged.
func (t TypeCode) Element() TypeCode {
	switch t {
	case TypeIterableString:
		return TypeString
	case TypeIterableInteger:
		return TypeInteger
	case TypeIterableFloat:
		return TypeFloat
	}
	return t
}

func (t TypeCode) valid() bool {
	switch t {
	case TypeString, TypeInteger, TypeFloat, TypeDate, TypeDateTime,
		TypeIterableString, TypeIterableInteger, TypeIterableFloat:
		return true
	}
	return false
}

// ItemRef names one attribute of one category.
type ItemRef struct {
	Category  string `yaml:"category" json:"category"`
	Attribute string `yaml:"attribute" json:"attribute"`
}

func (r ItemRef) String() string {
	return r.Category + "." + r.Attribute
}

// Attribute is one typed column of a category.
type Attribute struct {
	Category  string   `yaml:"-" json:"category"`
	Name      string   `yaml:"name" json:"name"`
	Type      TypeCode `yaml:"type" json:"type"`
	Nullable  bool     `yaml:"nullable" json:"nullable"`
	Width     int      `yaml:"width,omitempty" json:"width,omitempty"`
	Delimiter string   `yaml:"delimiter,omitempty" json:"delimiter,omitempty"`
	Parent    *ItemRef `yaml:"parent,omitempty" json:"parent,omitempty"`
}

// Category is a named group of attributes. ParentKey, when set,
// establishes 1:N containment under another category's attribute.
type Category struct {
	Name       string      `yaml:"name" json:"name"`
	Attributes []Attribute `yaml:"attributes" json:"attributes"`
	ParentKey  *ItemRef    `yaml:"parentKey,omitempty" json:"parentKey,omitempty"`
}

// Attribute returns the named attribute or nil.
func (c *Category) Attribute(name string) *Attribute {
	for i := range c.Attributes {
		if c.Attributes[i].Name == name {
			return &c.Attributes[i]
		}
	}
	return nil
}

// Dictionary is a merged, validated set of categories.
type Dictionary struct {
	Version    string
	categories map[string]*Category
}

func New(version string) *Dictionary {
	return &Dictionary{
		Version:    version,
		categories: make(map[string]*Category),
	}
}

// AddCategory merges cat into the dictionary. A new category is
// added whole; for an existing category, unknown attributes are
// appended and a redeclaration with a different type is an error.
func (d *Dictionary) AddCategory(cat Category) error {
	for i := range cat.Attributes {
		cat.Attributes[i].Category = cat.Name
		if !cat.Attributes[i].Type.valid() {
			return errors.Errorf("category %s attribute %s: unknown type code %q", cat.Name, cat.Attributes[i].Name, cat.Attributes[i].Type)
		}
		if cat.Attributes[i].Delimiter != "" && !cat.Attributes[i].Type.Iterable() {
			return errors.Errorf("category %s attribute %s: delimiter declared on non-iterable type %q", cat.Name, cat.Attributes[i].Name, cat.Attributes[i].Type)
		}
	}
	existing, ok := d.categories[cat.Name]
	if !ok {
		cp := cat
		d.categories[cat.Name] = &cp
		return nil
	}
	for _, at := range cat.Attributes {
		prev := existing.Attribute(at.Name)
		if prev == nil {
			existing.Attributes = append(existing.Attributes, at)
			continue
		}
		if prev.Type != at.Type {
			return errors.Errorf("category %s attribute %s: conflicting types %q and %q", cat.Name, at.Name, prev.Type, at.Type)
		}
	}
	if existing.ParentKey == nil {
		existing.ParentKey = cat.ParentKey
	}
	return nil
}

// Category returns the named category or nil.
func (d *Dictionary) Category(name string) *Category {
	return d.categories[name]
}

// HasItem reports whether the referenced category.attribute exists.
func (d *Dictionary) HasItem(ref ItemRef) bool {
	cat := d.categories[ref.Category]
	return cat != nil && cat.Attribute(ref.Attribute) != nil
}

// CategoryNames returns all category names in sorted order.
func (d *Dictionary) CategoryNames() []string {
	names := make([]string, 0, len(d.categories))
	for name := range d.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Merge folds every category of other into d.
func (d *Dictionary) Merge(other *Dictionary) error {
	for _, name := range other.CategoryNames() {
		if err := d.AddCategory(*other.categories[name]); err != nil {
			return errors.Wrapf(err, "merging dictionary %s", other.Version)
		}
	}
	return nil
}

// Validate checks cross-category references. Every parent key and
// attribute parent must resolve to an existing item.
func (d *Dictionary) Validate() error {
	for _, name := range d.CategoryNames() {
		cat := d.categories[name]
		if cat.ParentKey != nil && !d.HasItem(*cat.ParentKey) {
			return errors.Errorf("category %s: parent key %s not in dictionary", name, cat.ParentKey)
		}
		for _, at := range cat.Attributes {
			if at.Parent != nil && !d.HasItem(*at.Parent) {
				return errors.Errorf("attribute %s.%s: parent %s not in dictionary", name, at.Name, at.Parent)
			}
		}
	}
	return nil
}
