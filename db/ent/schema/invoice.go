package schema

import (
	"entgo.io/ent"
	"entgo.io/ent/dialect"
	"entgo.io/ent/dialect/entsql"
	"entgo.io/ent/schema"
	"entgo.io/ent/schema/edge"
	"entgo.io/ent/schema/field"
	"entgo.io/ent/schema/index"

	"github.com/google/uuid"
)

type Invoice struct{ ent.Schema }

func (Invoice) Annotations() []schema.Annotation {
	return []schema.Annotation{
		entsql.Annotation{Table: "invoices"},
	}
}

func (Invoice) Fields() []ent.Field {
	return []ent.Field{
		field.UUID("id", uuid.UUID{}).
			Default(uuid.New).
			Immutable().
			StorageKey("id"),
		field.UUID("job_id", uuid.UUID{}),
		field.Int("sequence_id"),
		field.String("source_file").NotEmpty(),
		field.String("invoice_number").Optional().Nillable(),
		field.Time("invoice_date").
			SchemaType(map[string]string{dialect.Postgres: "date"}).
			Optional().Nillable(),
		field.String("supplier_name").Optional().Nillable(),
		field.String("supplier_ruc").Optional().Nillable(),
		field.String("customer_name").Optional().Nillable(),
		field.String("customer_ruc").Optional().Nillable(),
		// Money columns carry exact decimal strings.
		field.String("subtotal").
			Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "numeric(12,2)"}),
		field.String("tax").
			Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "numeric(12,2)"}),
		field.String("total").
			Optional().Nillable().
			SchemaType(map[string]string{dialect.Postgres: "numeric(12,2)"}),
		field.String("currency").NotEmpty().MinLen(3).MaxLen(3).
			SchemaType(map[string]string{dialect.Postgres: "char(3)"}),
		field.Float32("confidence_score"),
	}
}

func (Invoice) Edges() []ent.Edge {
	return []ent.Edge{
		// MANY invoices -> ONE job (FK: invoices.job_id)
		edge.From("job", ExtractJob.Type).
			Ref("invoices").
			Field("job_id").
			Required().
			Unique(),
		// ONE invoice -> MANY line items
		edge.To("items", InvoiceItem.Type),
	}
}

func (Invoice) Indexes() []ent.Index {
	return []ent.Index{
		index.Fields("job_id", "sequence_id"),
		index.Fields("supplier_ruc"),
	}
}
