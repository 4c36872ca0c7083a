package main

// Statements are split on ';' by Migrate.
//
// cards_one_ongoing backs the single-Ongoing rule at the storage level: a
// concurrent writer that slips past the count check fails on the index.
const postgresSchema = `
create table if not exists users(
	id bigserial primary key,
	email text unique not null,
	password_hash text not null default '',
	name text not null default '',
	is_admin boolean not null default false,
	created_at timestamptz not null default now()
);
create unique index if not exists users_email_lower_idx on users(lower(email));
create table if not exists cards(
	id bigserial primary key,
	title text not null check (length(title) >= 2),
	description text not null default '',
	created_on date not null default current_date,
	status text not null default '',
	priority text not null default '',
	user_id bigint not null references users(id)
);
create index if not exists cards_created_on_idx on cards(created_on desc, id desc);
create unique index if not exists cards_one_ongoing on cards(status) where status = 'Ongoing';
create table if not exists comments(
	id bigserial primary key,
	card_id bigint not null references cards(id) on delete cascade,
	user_id bigint not null references users(id),
	message text not null,
	created_at timestamptz not null default now()
);
create index if not exists comments_card_idx on comments(card_id);
`

const sqliteSchema = `
create table if not exists users(
	id integer primary key autoincrement,
	email text unique not null collate nocase,
	password_hash text not null default '',
	name text not null default '',
	is_admin boolean not null default 0,
	created_at timestamp not null
);
create table if not exists cards(
	id integer primary key autoincrement,
	title text not null check (length(title) >= 2),
	description text not null default '',
	created_on date not null,
	status text not null default '',
	priority text not null default '',
	user_id integer not null references users(id)
);
create index if not exists cards_created_on_idx on cards(created_on desc, id desc);
create unique index if not exists cards_one_ongoing on cards(status) where status = 'Ongoing';
create table if not exists comments(
	id integer primary key autoincrement,
	card_id integer not null references cards(id) on delete cascade,
	user_id integer not null references users(id),
	message text not null,
	created_at timestamp not null
);
create index if not exists comments_card_idx on comments(card_id);
`
